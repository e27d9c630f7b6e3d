package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"

	"github.com/BurntSushi/toml"

	"github.com/cptspacemanspiff/power-monitor/internal/config"
)

func runConfigCmd(args []string) error {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	showPath := fs.Bool("path", false, "print the resolved config file path and exit")
	reset := fs.Bool("reset", false, "overwrite the config file with defaults")
	edit := fs.Bool("edit", false, "open the config file in $EDITOR")
	if err := fs.Parse(args); err != nil {
		return err
	}

	path := os.Getenv("POWER_MONITOR_CONFIG")
	if path == "" {
		path = "/etc/power-monitor/config.toml"
	}

	if *showPath {
		fmt.Println(path)
		return nil
	}

	if *reset {
		if err := config.Save(path, config.DefaultConfig()); err != nil {
			return fmt.Errorf("reset config: %w", err)
		}
		fmt.Printf("wrote default config to %s\n", path)
		return nil
	}

	if *edit {
		editor := os.Getenv("EDITOR")
		if editor == "" {
			editor = "vi"
		}
		cmd := exec.Command(editor, path)
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		return cmd.Run()
	}

	cfg, err := config.Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg = config.DefaultConfig()
		} else {
			return fmt.Errorf("load config: %w", err)
		}
	}

	encoder := toml.NewEncoder(os.Stdout)
	return encoder.Encode(cfg)
}
