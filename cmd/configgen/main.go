package main

import (
	"flag"
	"log"

	"github.com/danmuck/sip2ctl/internal/config"
)

const defaultPath = "cmd/sipctl/sipctl.toml"

func main() {
	output := flag.String("output", defaultPath, "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", defaultPath, "config path for validation")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		cfg, err := config.Load(*input)
		if err != nil {
			log.Fatal(err)
		}
		if err := config.Validate(cfg); err != nil {
			log.Fatal(err)
		}
		log.Printf("Validated sipctl config at %s (server %s)", *input, cfg.Server.Addr())
		return
	}

	if err := config.WriteTemplate(*output, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote sipctl config template to %s", *output)
}
