package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/legacyping/internal/config"
	"github.com/woozymasta/legacyping/internal/legacy"
	"github.com/woozymasta/legacyping/internal/models"
	"github.com/woozymasta/legacyping/internal/poller"
)

// queryOnce queries every positional target concurrently, prints results in
// argument order and returns the number of failed targets.
func queryOnce(cfg *config.Config, out io.Writer) int {
	targets, err := poller.ParseTargets(cfg.Args.Targets)
	if err != nil {
		log.Error().Err(err).Msg("Invalid target")
		return len(cfg.Args.Targets)
	}

	results := make([]models.Result, len(targets))
	var wg sync.WaitGroup
	for i, addr := range targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = poller.Check(context.Background(), addr, cfg.Query.Timeout, nil)
		}()
	}
	wg.Wait()

	failed := 0
	enc := json.NewEncoder(out)
	for _, res := range results {
		if !res.Online {
			failed++
		}
		if cfg.Query.Plain {
			res.MOTD = legacy.StripFormatting(res.MOTD)
		}

		if cfg.Query.JSON {
			if err := enc.Encode(res); err != nil {
				log.Error().Err(err).Msg("Failed to write result")
			}
			continue
		}
		printResult(out, res)
	}

	return failed
}

func printResult(out io.Writer, res models.Result) {
	target := legacy.Address{Host: res.Host, Port: uint16(res.Port)}.String()

	if !res.Online {
		_, _ = fmt.Fprintf(out, "%s\toffline (%s)\t%s\n", target, res.ErrorKind, res.Error)
		return
	}

	_, _ = fmt.Fprintf(out, "%s\t%d/%d\t%s\t%dms\t%s\n",
		target, res.Players, res.MaxPlayers, res.Version, res.Latency.Milliseconds(), res.MOTD)
}
