package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/coursedesk/deadline-cli/internal/model"
	"github.com/coursedesk/deadline-cli/internal/service"
	"github.com/coursedesk/deadline-cli/pkg/extractor"
)

var (
	extractSource string
	extractName   string
)

var extractCmd = &cobra.Command{
	Use:   "extract <file>",
	Short: "Extract deadline candidates from a document and print them",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := buildService()
		if err != nil {
			return err
		}

		content, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrap(err, "read document")
		}

		name := extractName
		if name == "" {
			name = args[0]
		}

		stored, err := svc.IngestDocument(cmd.Context(), extractor.Document{
			Name:    name,
			Content: string(content),
		}, service.IntakeMeta{
			Source:       model.SourceType(extractSource),
			DocumentName: name,
		}, nil)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stored)
	},
}

func init() {
	extractCmd.Flags().StringVar(&extractSource, "source", string(model.SourceSyllabus), "provenance category (syllabus, image, website, canvas)")
	extractCmd.Flags().StringVar(&extractName, "name", "", "document name for provenance (defaults to the file path)")
	rootCmd.AddCommand(extractCmd)
}
