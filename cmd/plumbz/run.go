package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zoobzio/plumbz"
	"github.com/zoobzio/plumbz/stream"
)

// maxLine bounds a single input record.
const maxLine = 1 << 20

var (
	errNotObject    = errors.New("record is not a JSON object")
	errMissingField = errors.New("missing required field")
	errHalted       = errors.New("pipeline halted")
)

// record is one input line moving through the pipeline.
type record struct {
	Fields map[string]any
	Raw    []byte
	Line   int
}

// runOptions holds the per-invocation settings of the run command.
type runOptions struct {
	Format  string
	Require []string
}

// summary reports what a run did.
type summary struct {
	Read    int
	Emitted int
}

func newRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run NDJSON records from stdin through an isolated pipeline",
		Long: `Read newline-delimited JSON from stdin and write the records that
survive every stage to stdout.

Stages:
  decode   parse each line as a JSON object
  require  check the fields named by --require
  emit     encode the record as --format

Failures are handled per the configured handler. With "log" they are
logged once and the record is dropped. With "off" the first failure
halts the pipeline and the command exits non-zero.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, err := newLogger(cmd)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			sum, err := run(cmd.Context(), cfg, opts, cmd.InOrStdin(), cmd.OutOrStdout(), logger)
			if err != nil {
				return err
			}
			logger.Info("pipeline complete",
				zap.Int("read", sum.Read),
				zap.Int("emitted", sum.Emitted),
				zap.Int("dropped", sum.Read-sum.Emitted),
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Format, "format", formatJSON, "Output format: json or msgpack")
	cmd.Flags().StringSliceVar(&opts.Require, "require", nil, "Fields every record must carry")
	return cmd
}

// run builds the pipeline, feeds it every line of in and waits for the
// result. It returns the failure that halted the pipeline, if any.
func run(ctx context.Context, cfg plumbz.Config, opts runOptions, in io.Reader, out io.Writer, logger *zap.Logger) (summary, error) {
	var sum summary

	enc, err := newEncoder(opts.Format, out)
	if err != nil {
		return sum, err
	}
	sentinelOpts, err := cfg.Options(logger)
	if err != nil {
		return sum, err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	sentinel := plumbz.New[record](sentinelOpts...)
	defer sentinel.Close()

	var scanErr error
	src := stream.FromSeq("stdin", lines(in, &sum.Read, &scanErr))
	defer src.Close()

	stages := []stream.Stream[record]{
		decode(ctx),
		requireFields(ctx, opts.Require),
	}
	sink := emit(ctx, enc, &sum.Emitted)

	tail := stream.Stream[record](sentinel)
	for _, s := range stages {
		tail = tail.Pipe(s)
	}
	tail.Pipe(sink)

	src.Pipe(sentinel)
	src.Start()

	if scanErr != nil {
		return sum, fmt.Errorf("failed to read input: %w", scanErr)
	}
	settled, err := stream.Settled[record](sink)
	if err != nil {
		return sum, fmt.Errorf("%w: %w", errHalted, err)
	}
	if !settled {
		for _, s := range stages {
			if err := s.Err(); err != nil {
				return sum, fmt.Errorf("%w: %w", errHalted, err)
			}
		}
		return sum, errHalted
	}
	return sum, nil
}

// lines yields each non-blank line of r, counting them in read. A read
// failure stops the sequence and is stored in errp.
func lines(r io.Reader, read *int, errp *error) iter.Seq[record] {
	return func(yield func(record) bool) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
		n := 0
		for scanner.Scan() {
			n++
			raw := bytes.TrimSpace(scanner.Bytes())
			if len(raw) == 0 {
				continue
			}
			*read++
			if !yield(record{Line: n, Raw: bytes.Clone(raw)}) {
				return
			}
		}
		*errp = scanner.Err()
	}
}

func decode(ctx context.Context) *stream.Duplex[record] {
	return stream.Apply("decode", func(_ context.Context, r record) (record, error) {
		var fields map[string]any
		if err := json.Unmarshal(r.Raw, &fields); err != nil {
			return r, fmt.Errorf("line %d: %w", r.Line, err)
		}
		if fields == nil {
			return r, fmt.Errorf("line %d: %w", r.Line, errNotObject)
		}
		r.Fields = fields
		return r, nil
	}, stream.WithContext(ctx))
}

func requireFields(ctx context.Context, keys []string) *stream.Duplex[record] {
	return stream.Apply("require", func(_ context.Context, r record) (record, error) {
		for _, key := range keys {
			if _, ok := r.Fields[key]; !ok {
				return r, fmt.Errorf("line %d: %w: %s", r.Line, errMissingField, key)
			}
		}
		return r, nil
	}, stream.WithContext(ctx))
}

// emit creates the terminal stage that encodes each record it receives.
func emit(ctx context.Context, enc encoder, emitted *int) *stream.Duplex[record] {
	d := stream.New("emit", stream.Config[record]{
		Context: ctx,
		Transform: func(r record, _ func(record) bool, done func(error)) {
			if err := enc.Encode(r.Fields); err != nil {
				done(fmt.Errorf("line %d: %w", r.Line, err))
				return
			}
			*emitted++
			done(nil)
		},
	})
	// Nothing is pushed downstream; flowing lets the stage finish on its own.
	d.Resume()
	return d
}
