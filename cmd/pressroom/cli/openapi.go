package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pressroomhq/pressroom/internal/openapi"
)

func newOpenAPICmd() *cobra.Command {
	var (
		baseURL    string
		outputFile string
	)

	cmd := &cobra.Command{
		Use:   "openapi",
		Short: "Generate the OpenAPI specification",
		Long:  `Generate the OpenAPI 3 document describing the admin API: account creation, login, logout and profile.`,
		Example: `  pressroom openapi                          # print to stdout
  pressroom openapi -o openapi.json          # write to file
  pressroom openapi --base-url https://cms.example.com`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOpenAPI(cmd.OutOrStdout(), baseURL, outputFile)
		},
	}

	cmd.Flags().StringVar(&baseURL, "base-url", "", "Server URL advertised in the document (default: http://<host>:<port>)")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write spec to file instead of stdout")

	return cmd
}

func runOpenAPI(out io.Writer, baseURL, outputFile string) error {
	if baseURL == "" {
		host := viper.GetString("server.host")
		if host == "" || host == "0.0.0.0" {
			host = "localhost"
		}
		port := viper.GetInt("server.port")
		if port == 0 {
			port = 8080
		}
		baseURL = fmt.Sprintf("http://%s:%d", host, port)
	}

	doc := openapi.Generate(baseURL, versionString())
	jsonBytes, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode openapi document: %w", err)
	}

	if outputFile != "" {
		if err := os.WriteFile(outputFile, jsonBytes, 0644); err != nil {
			return fmt.Errorf("write %s: %w", outputFile, err)
		}
		fmt.Fprintf(out, "Wrote %s\n", outputFile)
		return nil
	}

	_, err = fmt.Fprintln(out, string(jsonBytes))
	return err
}
