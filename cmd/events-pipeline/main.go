package main

import (
	"os"

	"github.com/kulmetehan/turkish-diaspora-app-sub002/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
