package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/danmuck/capbridge/internal/config"
	"github.com/danmuck/capbridge/internal/registry"
	"github.com/danmuck/capbridge/internal/schema"
	"github.com/spf13/cobra"
	"github.com/tidwall/pretty"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the targets, actions and emitters the agent would publish",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return writeSchema(cmd.OutOrStdout(), cfg)
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}

type memberDoc struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Kind   string          `json:"kind,omitempty"`
	Schema json.RawMessage `json:"schema"`
}

type targetDoc struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Actions  []memberDoc `json:"actions"`
	Emitters []memberDoc `json:"emitters"`
}

func writeSchema(w io.Writer, cfg config.Config) error {
	hosts, err := buildLamps(cfg.Lamps)
	if err != nil {
		return err
	}
	defer func() {
		for _, h := range hosts {
			h.Release()
		}
	}()

	reg := registry.New(cfg.Registry(), registry.Inline{})
	for _, h := range hosts {
		if !reg.Register(h) {
			return fmt.Errorf("register %s: %w", h.Identifier(), registry.ErrTargetExists)
		}
	}

	docs := make([]targetDoc, 0, reg.Len())
	for _, view := range reg.Snapshot() {
		doc := targetDoc{ID: view.ID, Name: view.Name}
		for _, a := range view.Actions {
			raw, err := schema.DocumentJSON(a.Schema)
			if err != nil {
				return err
			}
			doc.Actions = append(doc.Actions, memberDoc{ID: a.ID, Name: a.Name, Kind: a.Kind, Schema: raw})
		}
		for _, e := range view.Emitters {
			raw, err := schema.DocumentJSON(e.Schema)
			if err != nil {
				return err
			}
			doc.Emitters = append(doc.Emitters, memberDoc{ID: e.ID, Name: e.Name, Schema: raw})
		}
		docs = append(docs, doc)
	}

	out, err := json.Marshal(docs)
	if err != nil {
		return err
	}
	_, err = w.Write(pretty.Pretty(out))
	return err
}
