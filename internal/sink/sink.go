// Package sink delivers an assembled payload to its destination: a local
// file, an S3 object, standard output, or nowhere.
package sink

import (
	"context"
	"io"
	"os"
	"strings"
)

type Payload struct {
	Data      []byte
	SessionID string
	SourceURL string
	SHA256    string
}

type Sink interface {
	// Write returns where the payload ended up.
	Write(ctx context.Context, p Payload) (string, error)
}

// New picks a sink for dest: "" discards, "-" writes to stdout, "s3://" uploads
// and anything else is a file path.
func New(ctx context.Context, dest string) (Sink, error) {
	switch {
	case dest == "":
		return DiscardSink{}, nil
	case dest == "-":
		return WriterSink{W: os.Stdout, Name: "stdout"}, nil
	case strings.HasPrefix(dest, "s3://"):
		return NewS3Sink(ctx, dest)
	default:
		return &FileSink{Path: dest}, nil
	}
}

type DiscardSink struct{}

func (DiscardSink) Write(ctx context.Context, p Payload) (string, error) {
	return "", nil
}

type WriterSink struct {
	W    io.Writer
	Name string
}

func (s WriterSink) Write(ctx context.Context, p Payload) (string, error) {
	if _, err := s.W.Write(p.Data); err != nil {
		return "", err
	}
	return s.Name, nil
}
