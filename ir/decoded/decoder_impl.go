package decoded

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/wudi/docseal/filters"
	"github.com/wudi/docseal/ir/raw"
)

var (
	ErrMissingStream = errors.New("stream not found")
	ErrDirectStream  = errors.New("stream must be an indirect object")
)

// NewDecoder constructs a Decoder that applies filter decoding to streams.
// Streams whose filters fail are recorded in DecodedDocument.Failures so
// callers can decide whether the stream matters to them.
func NewDecoder(p *filters.Pipeline) Decoder {
	return &decoderImpl{pipeline: p}
}

type decoderImpl struct {
	pipeline *filters.Pipeline
}

func (d *decoderImpl) Decode(ctx context.Context, rawDoc *raw.Document) (*DecodedDocument, error) {
	if rawDoc == nil {
		return nil, errors.New("raw document is required")
	}
	streams := make(map[raw.ObjectRef]Stream)
	failures := make(map[raw.ObjectRef]error)

	type task struct {
		ref raw.ObjectRef
		obj *raw.StreamObj
	}
	var tasks []task
	for ref, obj := range rawDoc.Objects {
		if s, ok := obj.(*raw.StreamObj); ok {
			tasks = append(tasks, task{ref: ref, obj: s})
		}
	}

	workers := runtime.GOMAXPROCS(0)
	if workers < 1 {
		workers = 1
	}

	// buffered channel as a semaphore
	sem := make(chan struct{}, workers)
	type result struct {
		ref    raw.ObjectRef
		stream Stream
		err    error
	}
	results := make(chan result, len(tasks))

	var wg sync.WaitGroup
	for _, t := range tasks {
		wg.Add(1)
		go func(t task) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results <- result{ref: t.ref, err: ctx.Err()}
				return
			}
			defer func() { <-sem }()

			if err := ctx.Err(); err != nil {
				results <- result{ref: t.ref, err: err}
				return
			}

			data := t.obj.Data
			names, params := filters.ExtractFilters(rawDoc, t.obj.Dict)
			encoded := false
			if len(names) > 0 {
				if d.pipeline == nil {
					results <- result{ref: t.ref, err: fmt.Errorf("no filter pipeline for %v", names)}
					return
				}
				out, err := d.pipeline.Decode(ctx, data, names, params)
				if err != nil {
					results <- result{ref: t.ref, err: fmt.Errorf("decode filters %v for %v: %w", names, t.ref, err)}
					return
				}
				data = out
				encoded = filters.IsPassThrough(names[len(names)-1])
			}

			results <- result{
				ref: t.ref,
				stream: decodedStream{
					raw:     t.obj,
					data:    data,
					filters: names,
					encoded: encoded,
				},
			}
		}(t)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	for res := range results {
		if res.err != nil {
			failures[res.ref] = res.err
			continue
		}
		streams[res.ref] = res.stream
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &DecodedDocument{
		Raw:       rawDoc,
		Streams:   streams,
		Failures:  failures,
		Encrypted: rawDoc.Encrypted,
	}, nil
}

type decodedStream struct {
	raw     *raw.StreamObj
	data    []byte
	filters []string
	encoded bool
}

func (s decodedStream) Raw() raw.Object          { return s.raw }
func (s decodedStream) Type() string             { return s.raw.Type() }
func (s decodedStream) Dictionary() *raw.DictObj { return s.raw.Dict }
func (s decodedStream) Data() []byte             { return s.data }
func (s decodedStream) Filters() []string        { return s.filters }
func (s decodedStream) Encoded() bool            { return s.encoded }
