package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/wapuda/videonote_bot/internal/convert"
)

// localFetcher feeds a file from disk into the pipeline instead of
// downloading from Telegram, for trying out the ffmpeg profile locally.
type localFetcher struct{ path string }

func (f localFetcher) Fetch(_ context.Context, _ string, dst string) error {
	in, err := os.Open(f.path)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./cmd/localtest <input.mp4>")
		return
	}
	in := os.Args[1]

	pipe := &convert.Pipeline{
		Fetch:   localFetcher{path: in},
		DataDir: "./out",
	}
	note, cleanup, err := pipe.Process(context.Background(), convert.Request{
		FileID:       "local",
		OriginalName: in,
	})
	if err != nil {
		fmt.Println("Failed:", err)
		os.Exit(1)
	}
	defer cleanup()

	// keep the artifact around after the scoped workdir is released
	kept := "note.mp4"
	if err := copyFile(note, kept); err != nil {
		fmt.Println("Failed:", err)
		os.Exit(1)
	}
	fmt.Println("Generated:", kept)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
