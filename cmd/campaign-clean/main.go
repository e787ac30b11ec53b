// Command campaign-clean adds an End Date column to the web campaign sheet.
package main

import (
	"flag"
	"os"
	"time"

	"github.com/haven/analytics-sync/internal/campaign"
	"github.com/haven/analytics-sync/internal/config"
	"github.com/haven/analytics-sync/internal/pkg/logger"
)

func main() {
	var (
		configPath = flag.String("config", "", "config file providing campaign.input_path and campaign.output_path")
		in         = flag.String("in", "", "campaign CSV to read")
		out        = flag.String("out", "", "cleaned CSV to write")
	)
	flag.Parse()

	if *configPath != "" {
		cfg, err := config.LoadFromEnv(*configPath)
		if err != nil {
			logger.Error("Failed to load config", "path", *configPath, "error", err)
			os.Exit(1)
		}
		if *in == "" {
			*in = cfg.Campaign.InputPath
		}
		if *out == "" {
			*out = cfg.Campaign.OutputPath
		}
	}
	if *in == "" || *out == "" {
		flag.Usage()
		os.Exit(2)
	}

	n, err := campaign.CleanFile(*in, *out, time.Now())
	if err != nil {
		logger.Error("Failed to clean campaigns", "in", *in, "error", err)
		os.Exit(1)
	}
	logger.Info("Campaign end dates written", "campaigns", n, "out", *out)
}
