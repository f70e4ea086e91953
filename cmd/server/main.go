package main

import (
	"github.com/faro-watch/faro/backend/internal/server"
	"github.com/faro-watch/faro/backend/internal/util"
	"github.com/faro-watch/faro/backend/pkg/logger"
	"github.com/faro-watch/faro/backend/pkg/logger/console"
)

func main() {
	util.LoadEnv()

	debug := util.GetEnvBool("DEBUG", false)

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
		JSON:  util.GetEnvString("LOG_FORMAT", "text") == "json",
	})
	logger.Init(consoleLogger)

	server.Init()
}
