package command

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/sightingdb-go/internal/cli/connection"
	"github.com/yndnr/sightingdb-go/internal/cli/output"
)

var b64Flag = &cli.BoolFlag{
	Name:  "b64",
	Usage: "values are already base64url encoded",
}

// WriteCommand returns the write command.
func WriteCommand() *cli.Command {
	return &cli.Command{
		Name:      "write",
		Aliases:   []string{"w"},
		Usage:     "Record a sighting of one or more values",
		ArgsUsage: "NAMESPACE VALUE [VALUE...]",
		Flags: []cli.Flag{
			&cli.Int64Flag{
				Name:    "timestamp",
				Aliases: []string{"t"},
				Usage:   "sighting time in unix seconds (default now)",
			},
			b64Flag,
		},
		Action: writeAction,
	}
}

func writeAction(c *cli.Context) error {
	if err := requireArgs(c, 2); err != nil {
		return err
	}
	rt, err := runtimeOf(c)
	if err != nil {
		return err
	}
	ns := c.Args().First()
	values, err := encodeValues(c.Args().Tail(), c.Bool("b64"))
	if err != nil {
		return err
	}
	ts := c.Int64("timestamp")

	if len(values) == 1 {
		path, err := namespacePath("/w/", ns)
		if err != nil {
			return err
		}
		q := url.Values{"val": {values[0]}}
		if ts != 0 {
			q.Set("timestamp", strconv.FormatInt(ts, 10))
		}
		var res message
		if err := get(c.Context, rt.client, path, q, &res); err != nil {
			return err
		}
		return rt.print(res)
	}

	items := make([]importItem, len(values))
	for i, v := range values {
		items[i] = importItem{Namespace: ns, Value: v, Timestamp: ts}
	}
	res, err := bulkWrite(c.Context, rt.client, items)
	if err != nil {
		return err
	}
	if err := rt.print(res); err != nil {
		return err
	}
	if res.Failed > 0 {
		return fmt.Errorf("%d of %d values were not written", res.Failed, len(items))
	}
	return nil
}

func readFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:    "stats",
			Aliases: []string{"S"},
			Usage:   "include first and last seen times",
		},
		&cli.BoolFlag{
			Name:  "noshadow",
			Usage: "leave out the previous-period count",
		},
		b64Flag,
	}
}

// ReadCommand returns the read command.
func ReadCommand() *cli.Command {
	return &cli.Command{
		Name:      "read",
		Aliases:   []string{"r"},
		Usage:     "Read counters; without VALUE lists the namespace",
		ArgsUsage: "NAMESPACE [VALUE...]",
		Flags:     readFlags(),
		Action:    readAction,
	}
}

// ListCommand returns the ls command.
func ListCommand() *cli.Command {
	return &cli.Command{
		Name:      "ls",
		Usage:     "List every value recorded in a namespace",
		ArgsUsage: "NAMESPACE",
		Flags:     readFlags(),
		Action: func(c *cli.Context) error {
			if err := requireArgs(c, 1); err != nil {
				return err
			}
			rt, err := runtimeOf(c)
			if err != nil {
				return err
			}
			return listNamespace(c, rt, c.Args().First())
		},
	}
}

func readRoute(c *cli.Context, single bool) string {
	switch {
	case single && c.Bool("stats"):
		return "/rs/"
	case single:
		return "/r/"
	case c.Bool("stats"):
		return "/rbs"
	default:
		return "/rb"
	}
}

func readAction(c *cli.Context) error {
	if err := requireArgs(c, 1); err != nil {
		return err
	}
	rt, err := runtimeOf(c)
	if err != nil {
		return err
	}
	ns := c.Args().First()
	if c.NArg() == 1 {
		return listNamespace(c, rt, ns)
	}

	values, err := encodeValues(c.Args().Tail(), c.Bool("b64"))
	if err != nil {
		return err
	}

	if len(values) == 1 {
		path, err := namespacePath(readRoute(c, true), ns)
		if err != nil {
			return err
		}
		q := url.Values{"val": {values[0]}}
		if c.Bool("noshadow") {
			q.Set("noshadow", "")
		}
		var res sighting
		if err := get(c.Context, rt.client, path, q, &res); err != nil {
			return err
		}
		return rt.print(res)
	}

	type readItem struct {
		Namespace string `json:"namespace"`
		Value     string `json:"value"`
		NoShadow  bool   `json:"noshadow,omitempty"`
	}
	req := struct {
		Items []readItem `json:"items"`
	}{Items: make([]readItem, len(values))}
	for i, v := range values {
		req.Items[i] = readItem{Namespace: ns, Value: v, NoShadow: c.Bool("noshadow")}
	}

	var res struct {
		Items sightings `json:"items"`
	}
	if err := post(c.Context, rt.client, readRoute(c, false), req, &res); err != nil {
		return err
	}
	for i := range res.Items {
		if res.Items[i].Value == "" && i < len(values) {
			res.Items[i].Value = values[i]
		}
	}
	return rt.print(res.Items)
}

func listNamespace(c *cli.Context, rt *runtime, ns string) error {
	path, err := namespacePath(readRoute(c, true), ns)
	if err != nil {
		return err
	}
	q := url.Values{}
	if c.Bool("noshadow") {
		q.Set("noshadow", "")
	}
	var res struct {
		Items sightings `json:"items"`
	}
	if err := get(c.Context, rt.client, path, q, &res); err != nil {
		return err
	}
	return rt.print(res.Items)
}

// DeleteCommand returns the delete command.
func DeleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Aliases:   []string{"rm"},
		Usage:     "Delete a namespace and every namespace below it",
		ArgsUsage: "NAMESPACE",
		Action: func(c *cli.Context) error {
			if err := requireArgs(c, 1); err != nil {
				return err
			}
			rt, err := runtimeOf(c)
			if err != nil {
				return err
			}
			path, err := namespacePath("/d/", c.Args().First())
			if err != nil {
				return err
			}
			resp, err := rt.client.Delete(c.Context, path)
			if err != nil {
				return fmt.Errorf("request failed: %w", err)
			}
			var res message
			if err := connection.ParseResponse(resp, &res); err != nil {
				return err
			}
			return rt.print(res)
		},
	}
}

// importItem is one record of a bulk write body.
type importItem struct {
	Namespace string `json:"namespace"`
	Value     string `json:"value"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// ImportCommand returns the import command.
func ImportCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Bulk-write sightings from a CSV file (namespace,value[,timestamp])",
		ArgsUsage: "FILE|-",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "batch-size",
				Usage: "items per request",
				Value: 500,
			},
			&cli.StringFlag{
				Name:  "delimiter",
				Usage: "field delimiter",
				Value: ",",
			},
			&cli.BoolFlag{
				Name:    "quiet",
				Aliases: []string{"q"},
				Usage:   "no progress bar",
			},
			b64Flag,
		},
		Action: importAction,
	}
}

func importAction(c *cli.Context) error {
	if err := requireArgs(c, 1); err != nil {
		return err
	}
	rt, err := runtimeOf(c)
	if err != nil {
		return err
	}
	batchSize := c.Int("batch-size")
	if batchSize <= 0 {
		return errors.New("--batch-size must be positive")
	}
	delim := []rune(c.String("delimiter"))
	if len(delim) != 1 {
		return errors.New("--delimiter must be a single character")
	}

	var in io.Reader = os.Stdin
	if name := c.Args().First(); name != "-" {
		f, err := os.Open(name)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	items, err := readImport(in, delim[0], c.Bool("b64"))
	if err != nil {
		return err
	}

	var bar *output.ProgressBar
	if !c.Bool("quiet") {
		bar = output.NewProgressBar(rt.errOut, "importing", len(items))
	}
	total := bulkWriteResult{Message: "ok"}
	for start := 0; start < len(items); start += batchSize {
		batch := items[start:min(start+batchSize, len(items))]
		res, err := bulkWrite(c.Context, rt.client, batch)
		if err != nil {
			if bar != nil {
				bar.Finish()
			}
			return fmt.Errorf("batch at line %d: %w", start+1, err)
		}
		total.Written += res.Written
		total.Failed += res.Failed
		total.Skipped += res.Skipped
		if bar != nil {
			bar.Add(len(batch), res.Failed)
		}
	}
	if bar != nil {
		bar.Finish()
	}

	if total.Failed > 0 {
		total.Message = "some items were not written"
	}
	summary := struct {
		Message string `json:"message"`
		Written int    `json:"written"`
		Failed  int    `json:"failed"`
		Skipped int    `json:"skipped"`
	}{total.Message, total.Written, total.Failed, total.Skipped}
	if err := rt.print(summary); err != nil {
		return err
	}
	if total.Failed > 0 {
		return fmt.Errorf("%d of %d items were not written", total.Failed, len(items))
	}
	return nil
}

// readImport parses CSV records into bulk items. Lines starting with '#'
// are comments.
func readImport(in io.Reader, delim rune, raw bool) ([]importItem, error) {
	r := csv.NewReader(in)
	r.Comma = delim
	r.Comment = '#'
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var items []importItem
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return items, nil
		}
		if err != nil {
			return nil, err
		}
		line, _ := r.FieldPos(0)
		if len(rec) < 2 || len(rec) > 3 {
			return nil, fmt.Errorf("line %d: want namespace%svalue[%stimestamp], got %d fields", line, string(delim), string(delim), len(rec))
		}
		value, err := encodeValue(rec[1], raw)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		item := importItem{Namespace: strings.TrimSpace(rec[0]), Value: value}
		if len(rec) == 3 && strings.TrimSpace(rec[2]) != "" {
			ts, err := strconv.ParseInt(strings.TrimSpace(rec[2]), 10, 64)
			if err != nil || ts < 0 {
				return nil, fmt.Errorf("line %d: invalid timestamp %q", line, rec[2])
			}
			item.Timestamp = ts
		}
		items = append(items, item)
	}
}

func encodeValues(args []string, raw bool) ([]string, error) {
	out := make([]string, len(args))
	for i, a := range args {
		v, err := encodeValue(a, raw)
		if err != nil {
			return nil, fmt.Errorf("value %q: %w", a, err)
		}
		out[i] = v
	}
	return out, nil
}

func bulkWrite(ctx context.Context, client *connection.HTTPClient, items []importItem) (*bulkWriteResult, error) {
	req := struct {
		Items []importItem `json:"items"`
	}{items}
	var res bulkWriteResult
	if err := post(ctx, client, "/wb", req, &res); err != nil {
		return nil, err
	}
	res.values = make([]string, len(items))
	for i, it := range items {
		res.values[i] = it.Value
	}
	return &res, nil
}

func get(ctx context.Context, client *connection.HTTPClient, path string, q url.Values, target any) error {
	resp, err := client.Get(ctx, path, q)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	return connection.ParseResponse(resp, target)
}

func post(ctx context.Context, client *connection.HTTPClient, path string, body, target any) error {
	resp, err := client.Post(ctx, path, body)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	return connection.ParseResponse(resp, target)
}
