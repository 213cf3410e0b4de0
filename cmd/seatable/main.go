// CLI Query Runner
//
// Runs a SQL query against a SeaTable base, or prints the base's tables and
// columns, with option ids and dates decoded to their display values.
//
// Usage:
//
//	go run ./cmd/seatable -s <server> -t <api-token> -q "SELECT * FROM Tasks"
//
// Options:
//
//	-s, --server    SeaTable server URL (or set SEATABLE_SERVER env var)
//	-t, --token     Base API token (or set SEATABLE_API_TOKEN env var)
//	-q, --sql       SQL statement to run
//	-m, --metadata  Print tables and columns instead of running a query
//	-f, --format    Output format: "table", "json" or "csv" (default: "table")
//	-o, --output    Output file path (default: stdout)
//	-g, --gateway   Use the API gateway
//	-d, --debug     Enable debug logging
//	-h, --help      Show help
//
// Variables from a .env file in the working directory are loaded first.
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/DrewBradfordXYZ/seatable-go"
	"github.com/DrewBradfordXYZ/seatable-go/core"
	"github.com/Velocidex/ordereddict"
	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
)

const (
	envServer   = "SEATABLE_SERVER"
	envAPIToken = "SEATABLE_API_TOKEN"
)

// resultSet is a rendered query or metadata listing with ordered columns.
type resultSet struct {
	headers []string
	rows    []*ordereddict.Dict
}

func main() {
	// A missing .env file is not an error.
	_ = godotenv.Load()

	var (
		server   string
		token    string
		sql      string
		metadata bool
		format   string
		output   string
		gateway  bool
		debug    bool
		help     bool
	)

	flag.StringVar(&server, "s", "", "SeaTable server URL (or set SEATABLE_SERVER env var)")
	flag.StringVar(&server, "server", "", "SeaTable server URL (or set SEATABLE_SERVER env var)")
	flag.StringVar(&token, "t", "", "Base API token (or set SEATABLE_API_TOKEN env var)")
	flag.StringVar(&token, "token", "", "Base API token (or set SEATABLE_API_TOKEN env var)")
	flag.StringVar(&sql, "q", "", "SQL statement to run")
	flag.StringVar(&sql, "sql", "", "SQL statement to run")
	flag.BoolVar(&metadata, "m", false, "Print tables and columns")
	flag.BoolVar(&metadata, "metadata", false, "Print tables and columns")
	flag.StringVar(&format, "f", "table", "Output format: table, json or csv (default: table)")
	flag.StringVar(&format, "format", "table", "Output format: table, json or csv (default: table)")
	flag.StringVar(&output, "o", "", "Output file path (default: stdout)")
	flag.StringVar(&output, "output", "", "Output file path (default: stdout)")
	flag.BoolVar(&gateway, "g", false, "Use the API gateway")
	flag.BoolVar(&gateway, "gateway", false, "Use the API gateway")
	flag.BoolVar(&debug, "d", false, "Enable debug logging")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.BoolVar(&help, "h", false, "Show help")
	flag.BoolVar(&help, "help", false, "Show help")

	flag.Usage = showHelp
	flag.Parse()

	if help {
		showHelp()
		os.Exit(0)
	}

	// Use env vars if flags not provided
	if server == "" {
		server = os.Getenv(envServer)
	}
	if token == "" {
		token = os.Getenv(envAPIToken)
	}

	// Validate required options
	if server == "" {
		fail("--server is required (or set %s env var)", envServer)
	}
	if token == "" {
		fail("--token is required (or set %s env var)", envAPIToken)
	}
	if sql == "" && !metadata {
		fail("one of --sql or --metadata is required")
	}
	switch format {
	case "table", "json", "csv":
	default:
		fail("unknown format %q (use 'table', 'json' or 'csv')", format)
	}

	client, err := seatable.New(server,
		seatable.WithAPIToken(token),
		seatable.WithGateway(gateway),
		seatable.WithDebug(debug),
	)
	if err != nil {
		fail("creating client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	var result *resultSet
	if metadata {
		result, err = fetchMetadata(ctx, client)
	} else {
		result, err = runQuery(ctx, client, sql)
	}
	if err != nil {
		fail("%v", err)
	}

	// Write output
	var out io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			fail("creating output file: %v", err)
		}
		defer f.Close()
		out = f
	}

	if err := render(out, format, result); err != nil {
		fail("writing output: %v", err)
	}
	if output != "" {
		fmt.Fprintf(os.Stderr, "%d rows written to %s\n", len(result.rows), output)
	}
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func showHelp() {
	fmt.Println(`seatable-go - Query a SeaTable base

Usage:
  go run ./cmd/seatable [options]

Options:
  -s, --server <url>     SeaTable server URL (or set SEATABLE_SERVER env var)
  -t, --token <token>    Base API token (or set SEATABLE_API_TOKEN env var)
  -q, --sql <statement>  SQL statement to run
  -m, --metadata         Print tables and columns instead of running a query
  -f, --format <type>    Output format: "table", "json" or "csv" (default: "table")
  -o, --output <file>    Output file path (default: stdout)
  -g, --gateway          Use the API gateway
  -d, --debug            Enable debug logging
  -h, --help             Show this help message

Examples:
  # Print query results as a table
  go run ./cmd/seatable -s https://cloud.seatable.io -t your-token -q "SELECT * FROM Tasks"

  # Save results as CSV
  go run ./cmd/seatable -q "SELECT Name, Status FROM Tasks" -f csv -o tasks.csv

  # List tables and columns as JSON
  go run ./cmd/seatable -m -f json

  # Using environment variables (or a .env file)
  SEATABLE_SERVER=https://cloud.seatable.io SEATABLE_API_TOKEN=your-token go run ./cmd/seatable -m`)
}

// runQuery runs sql and orders each row's values by the result's columns.
func runQuery(ctx context.Context, client *seatable.Client, sql string) (*resultSet, error) {
	raw, err := client.QueryRaw(ctx, sql)
	if err != nil {
		return nil, err
	}
	rows := seatable.FormatQueryResult(raw,
		core.WithDateRenderer(client.DateRenderer()),
		core.WithLogger(client.Logger()),
	)

	headers := columnHeaders(raw.Columns)
	result := &resultSet{headers: headers}
	for _, row := range rows {
		dict := ordereddict.NewDict()
		for _, name := range headers {
			dict.Set(name, row[name])
		}
		result.rows = append(result.rows, dict)
	}
	return result, nil
}

// columnHeaders returns the row id field followed by the distinct column names.
func columnHeaders(columns []core.Column) []string {
	headers := []string{core.RowIDField}
	seen := map[string]bool{core.RowIDField: true}
	for _, col := range columns {
		if seen[col.Name] {
			continue
		}
		seen[col.Name] = true
		headers = append(headers, col.Name)
	}
	return headers
}

// fetchMetadata lists one row per column of every table.
func fetchMetadata(ctx context.Context, client *seatable.Client) (*resultSet, error) {
	metadata, err := client.GetMetadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching metadata: %w", err)
	}

	result := &resultSet{headers: []string{"table", "column", "key", "type", "options"}}
	for _, table := range metadata.Tables {
		for _, col := range table.Columns {
			result.rows = append(result.rows, ordereddict.NewDict().
				Set("table", table.Name).
				Set("column", col.Name).
				Set("key", col.Key).
				Set("type", string(col.Type)).
				Set("options", optionLabels(col)))
		}
	}
	return result, nil
}

func optionLabels(col core.Column) []string {
	data := col.Data
	if data != nil && col.Type.IsLink() {
		data = data.ArrayData
	}
	if data == nil {
		return []string{}
	}
	labels := make([]string, 0, len(data.Options))
	for _, option := range data.Options {
		labels = append(labels, option.Name)
	}
	return labels
}

func render(out io.Writer, format string, result *resultSet) error {
	switch format {
	case "json":
		return renderJSON(out, result)
	case "csv":
		return renderCSV(out, result)
	default:
		renderTable(out, result)
		return nil
	}
}

func renderTable(out io.Writer, result *resultSet) {
	table := tablewriter.NewWriter(out)
	table.SetHeader(result.headers)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)

	for _, row := range result.rows {
		table.Append(stringRow(result.headers, row))
	}
	table.Render()
}

func renderCSV(out io.Writer, result *resultSet) error {
	w := csv.NewWriter(out)
	if err := w.Write(result.headers); err != nil {
		return err
	}
	for _, row := range result.rows {
		if err := w.Write(stringRow(result.headers, row)); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func renderJSON(out io.Writer, result *resultSet) error {
	rows := result.rows
	if rows == nil {
		rows = []*ordereddict.Dict{}
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

func stringRow(headers []string, row *ordereddict.Dict) []string {
	cells := make([]string, len(headers))
	for i, name := range headers {
		value, _ := row.Get(name)
		cells[i] = stringify(value)
	}
	return cells
}

// stringify renders a decoded cell for table and CSV output.
func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = stringify(item)
		}
		return strings.Join(parts, ", ")
	case []string:
		return strings.Join(v, ", ")
	case map[string]any:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	default:
		return fmt.Sprint(v)
	}
}
