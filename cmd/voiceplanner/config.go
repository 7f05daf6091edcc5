package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ajz007/ai-voice-planner/internal/config"
)

func configCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}
	cmd.AddCommand(configInitCmd(e))
	cmd.AddCommand(configPathCmd(e))
	return cmd
}

func configInitCmd(e *env) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write the default configuration",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path := e.configPath
			if path == "" {
				path = config.DefaultPath()
			}
			if err := config.Default().WriteFile(path, force); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	return cmd
}

func configPathCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:         "path",
		Short:       "Print the configuration file location",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if e.configPath != "" {
				fmt.Println(e.configPath)
				return nil
			}
			fmt.Println(config.DefaultPath())
			return nil
		},
	}
}
