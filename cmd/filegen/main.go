// Command filegen generates a single large file of pseudo-random
// lowercase letters and digits,
// for exercising the download engine against realistic chunk counts. It
// is adapted from file_generator/main.go's many-small-random-files
// generator, generalized to one large file of a requested size, and
// kept as a standalone tool the core never imports — matching spec.md's
// "standalone large-file generator" exclusion.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"math/rand"
	"os"
)

const characterSet = "abcdefghijklmnopqrstuvxyzw0123456789"
const writeBufferSize = 64 * 1024

func main() {
	path := flag.String("out", "", "output file path")
	sizeBytes := flag.Int64("size", 1_000_000, "file size in bytes")
	flag.Parse()

	if *path == "" {
		fmt.Fprintln(os.Stderr, "filegen: -out is required")
		os.Exit(1)
	}
	if err := generateFile(*path, *sizeBytes); err != nil {
		fmt.Fprintln(os.Stderr, "filegen: "+err.Error())
		os.Exit(1)
	}
}

func generateFile(path string, size int64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriterSize(f, writeBufferSize)
	buf := make([]byte, writeBufferSize)
	var written int64
	for written < size {
		n := int64(len(buf))
		if remaining := size - written; remaining < n {
			n = remaining
		}
		fillRandom(buf[:n])
		if _, err := w.Write(buf[:n]); err != nil {
			return err
		}
		written += n
	}
	return w.Flush()
}

func fillRandom(buf []byte) {
	characterSetLen := len(characterSet)
	for i := range buf {
		buf[i] = characterSet[rand.Intn(characterSetLen)]
	}
}
