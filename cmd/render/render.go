package render

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/neutralts/nipc/client"
	"github.com/neutralts/nipc/config"
	"github.com/neutralts/nipc/session"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	configFile string
	schemaFile string
	mergeFiles []string
	tplPath    string
	sourceFile string
	showMeta   bool

	Cmd = &cobra.Command{
		Use:   "render",
		Short: "Render a template through the IPC peer",
		Example: "  nipc render --schema schema.json --path /var/www/tpl/home.ntpl\n" +
			"  cat schema.json | nipc render --schema - --source page.ntpl --merge user.json",
		Args: cobra.NoArgs,
		RunE: runRender,
	}
)

func init() {
	Cmd.Flags().StringVarP(&configFile, "config", "c", config.Path(), "path of config file")
	Cmd.Flags().StringVarP(&schemaFile, "schema", "s", "", "schema JSON file, - for stdin (default: empty object)")
	Cmd.Flags().StringArrayVarP(&mergeFiles, "merge", "m", nil, "schema JSON file deep merged over the schema, repeatable")
	Cmd.Flags().StringVarP(&tplPath, "path", "p", "", "template path as seen by the peer")
	Cmd.Flags().StringVar(&sourceFile, "source", "", "local template file sent as inline source")
	Cmd.Flags().BoolVar(&showMeta, "meta", false, "print the response metadata instead of the content")
	Cmd.MarkFlagsMutuallyExclusive("path", "source")
	Cmd.MarkFlagsOneRequired("path", "source")
}

func runRender(cmd *cobra.Command, args []string) error {
	logger := log.With().Str("com", "render-cmd").Logger()

	if err := checkStdin(schemaFile, mergeFiles); err != nil {
		return err
	}

	transport, err := client.New(config.Load(configFile))
	if err != nil {
		return err
	}

	schema, err := readInput(cmd.InOrStdin(), schemaFile)
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}
	if schema == nil {
		schema = []byte("{}")
	}

	s, err := session.New(transport, tplPath, schema)
	if err != nil {
		return err
	}
	if sourceFile != "" {
		source, err := os.ReadFile(sourceFile)
		if err != nil {
			return fmt.Errorf("read template source: %w", err)
		}
		s.SetSource(string(source))
	}
	for _, file := range mergeFiles {
		fragment, err := readInput(cmd.InOrStdin(), file)
		if err != nil {
			return fmt.Errorf("read schema fragment: %w", err)
		}
		if err := s.MergeSchema(fragment); err != nil {
			return fmt.Errorf("merge %s: %w", file, err)
		}
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	content, err := s.Render(ctx)
	if err != nil {
		return err
	}

	result := s.Result()
	if result.HasError() {
		logger.Warn().Msg("there are parse errors in the templates, check the peer logs")
	}
	if location, ok := result.Redirect(); ok {
		logger.Info().Int("status_code", s.StatusCode()).Str("location", location).Msg("template requested a redirect")
	} else if result.IsHTTPError() {
		logger.Warn().Int("status_code", s.StatusCode()).Str("status_text", s.StatusText()).
			Str("status_param", s.StatusParam()).Msg("template produced an http error")
	}

	out := cmd.OutOrStdout()
	if showMeta {
		meta, err := json.MarshalIndent(result.Metadata.Fields, "", "  ")
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		_, err = fmt.Fprintln(out, string(meta))
		return err
	}
	_, err = io.WriteString(out, content)
	return err
}

// checkStdin rejects more than one input reading stdin, which can only be
// consumed once.
func checkStdin(schema string, merges []string) error {
	n := 0
	if schema == "-" {
		n++
	}
	for _, file := range merges {
		if file == "-" {
			n++
		}
	}
	if n > 1 {
		return errors.New("stdin (-) can be used by only one of --schema and --merge")
	}
	return nil
}

// readInput reads a file, or stdin for "-". An empty name yields nil.
func readInput(stdin io.Reader, name string) ([]byte, error) {
	switch name {
	case "":
		return nil, nil
	case "-":
		return io.ReadAll(stdin)
	default:
		return os.ReadFile(name)
	}
}
