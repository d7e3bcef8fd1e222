package db

import (
	"encoding/json"
	"time"
)

// Source maps events.sources. Rows are configuration: the selectors blob
// encodes the feed format and format-specific field paths, and is treated as
// opaque input by everything except the decoder chosen at load time.
type Source struct {
	SourceID     int64           `gorm:"column:source_id;primaryKey;autoIncrement"`
	SourceKey    string          `gorm:"column:source_key;type:text;not null;unique"`
	Name         string          `gorm:"column:name;type:text;not null"`
	BaseURL      string          `gorm:"column:base_url;type:text;not null"`
	ListURL      string          `gorm:"column:list_url;type:text;not null"`
	CityKey      *string         `gorm:"column:city_key;type:text"`
	Selectors    json.RawMessage `gorm:"column:selectors;type:jsonb;not null"`
	Status       string          `gorm:"column:status;type:text;not null;default:active"`
	FetchDelayMS int             `gorm:"column:fetch_delay_ms;type:integer;not null;default:1500"`
	CreatedAt    time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (Source) TableName() string { return "events.sources" }

// RawItem maps events.raw_items: one row per source fetch, immutable once
// written except for processing_state, processing_errors and attempt_count.
// Rows are never deleted; they form the ingestion audit trail.
type RawItem struct {
	RawItemID        int64           `gorm:"column:raw_item_id;primaryKey;autoIncrement"`
	SourceKey        string          `gorm:"column:source_key;type:text;not null"`
	PageURL          *string         `gorm:"column:page_url;type:text"`
	FeedEntryID      *string         `gorm:"column:feed_entry_id;type:text"`
	HTTPStatus       *int            `gorm:"column:http_status;type:integer"`
	ResponseHeaders  json.RawMessage `gorm:"column:response_headers;type:jsonb"`
	ResponseBody     []byte          `gorm:"column:response_body;type:bytea"`
	ContentHash      []byte          `gorm:"column:content_hash;type:bytea"`
	ProcessingState  string          `gorm:"column:processing_state;type:text;not null;default:pending"`
	ProcessingErrors json.RawMessage `gorm:"column:processing_errors;type:jsonb"`
	AttemptCount     int             `gorm:"column:attempt_count;type:integer;not null;default:0"`
	FetchedAt        time.Time       `gorm:"column:fetched_at;type:timestamptz;not null;default:now()"`
	CreatedAt        time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (RawItem) TableName() string { return "events.raw_items" }

// EventRaw maps events.event_raws: a normalized-but-unvalidated event
// extracted from a raw item. ingest_hash is derived from immutable identity
// fields, so re-ingesting the same source material is a no-op.
type EventRaw struct {
	EventRawID      int64      `gorm:"column:event_raw_id;primaryKey;autoIncrement"`
	SourceID        int64      `gorm:"column:source_id;type:bigint;not null"`
	RawItemID       *int64     `gorm:"column:raw_item_id;type:bigint"`
	Title           string     `gorm:"column:title;type:text;not null"`
	Description     string     `gorm:"column:description;type:text;not null;default:''"`
	LocationText    string     `gorm:"column:location_text;type:text;not null;default:''"`
	Venue           string     `gorm:"column:venue;type:text;not null;default:''"`
	EventURL        string     `gorm:"column:event_url;type:text;not null;default:''"`
	ImageURL        *string    `gorm:"column:image_url;type:text"`
	Language        string     `gorm:"column:language;type:text;not null;default:und"`
	StartAt         *time.Time `gorm:"column:start_at;type:timestamptz"`
	EndAt           *time.Time `gorm:"column:end_at;type:timestamptz"`
	IngestHash      []byte     `gorm:"column:ingest_hash;type:bytea;not null"`
	ProcessingState string     `gorm:"column:processing_state;type:text;not null;default:pending"`
	ProcessingError *string    `gorm:"column:processing_error;type:text"`
	CreatedAt       time.Time  `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (EventRaw) TableName() string { return "events.event_raws" }

// EventCandidate maps events.event_candidates, the canonical queryable event
// entity. A non-null duplicate_of_id means the row is never surfaced as
// canonical; exactly one row per duplicate cluster keeps duplicate_of_id NULL.
type EventCandidate struct {
	EventCandidateID int64      `gorm:"column:event_candidate_id;primaryKey;autoIncrement"`
	EventRawID       int64      `gorm:"column:event_raw_id;type:bigint;not null;unique"`
	Title            string     `gorm:"column:title;type:text;not null"`
	Description      string     `gorm:"column:description;type:text;not null;default:''"`
	StartTimeUTC     time.Time  `gorm:"column:start_time_utc;type:timestamptz;not null"`
	EndTimeUTC       *time.Time `gorm:"column:end_time_utc;type:timestamptz"`
	LocationText     string     `gorm:"column:location_text;type:text;not null;default:''"`
	URL              string     `gorm:"column:url;type:text;not null;default:''"`
	ImageURL         *string    `gorm:"column:image_url;type:text"`
	SourceKey        string     `gorm:"column:source_key;type:text;not null"`
	CityKey          *string    `gorm:"column:city_key;type:text"`
	State            string     `gorm:"column:state;type:text;not null;default:candidate"`
	DuplicateOfID    *int64     `gorm:"column:duplicate_of_id;type:bigint"`
	DuplicateScore   *float64   `gorm:"column:duplicate_score;type:double precision"`
	DedupCheckedAt   *time.Time `gorm:"column:dedup_checked_at;type:timestamptz"`
	DedupSkipReason  *string    `gorm:"column:dedup_skip_reason;type:text"`
	CreatedAt        time.Time  `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt        time.Time  `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (EventCandidate) TableName() string { return "events.event_candidates" }

// WorkerRun maps events.worker_runs. Created at stage start, mutated during
// execution, immutable once finished. Never deleted; this is the operational
// audit log consumed read-only by the ops surface.
type WorkerRun struct {
	WorkerRunID  int64           `gorm:"column:worker_run_id;primaryKey;autoIncrement"`
	RunUUID      string          `gorm:"column:run_uuid;type:uuid;not null;unique"`
	Bot          string          `gorm:"column:bot;type:text;not null"`
	Status       string          `gorm:"column:status;type:text;not null;default:pending"`
	Progress     int             `gorm:"column:progress;type:integer;not null;default:0"`
	Counters     json.RawMessage `gorm:"column:counters;type:jsonb"`
	ErrorMessage *string         `gorm:"column:error_message;type:text"`
	StartedAt    time.Time       `gorm:"column:started_at;type:timestamptz;not null;default:now()"`
	FinishedAt   *time.Time      `gorm:"column:finished_at;type:timestamptz"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (WorkerRun) TableName() string { return "events.worker_runs" }

func autoMigrateModels() []any {
	return []any{
		&Source{},
		&RawItem{},
		&EventRaw{},
		&EventCandidate{},
		&WorkerRun{},
	}
}
