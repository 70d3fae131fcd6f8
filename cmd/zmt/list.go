package main

import (
	"fmt"
	"io"
	"os"

	"github.com/blockmt/zmt/codec"
	"github.com/blockmt/zmt/internal/envelope"
)

// runList implements the `-l` listing mode of spec §10: it walks envelope
// headers only, without invoking the codec's decoder, and prints a
// per-frame table of compressed and (when available) uncompressed sizes.
func runList(args []string, c codec.Codec) error {
	if len(args) == 0 {
		return listStream(os.Stdin, "<stdin>", c)
	}
	for _, name := range args {
		f, err := os.Open(name)
		if err != nil {
			return err
		}
		err = listStream(f, name, c)
		f.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func listStream(r io.Reader, name string, c codec.Codec) error {
	fmt.Printf("=== %s ===\n", name)
	fmt.Println("frame, compressed, uncompressed-hint")

	var index uint64
	var totalCompressed, totalHint uint64
	header := make([]byte, envelope.LongHeaderSize)
	for {
		n, err := io.ReadFull(r, header[:envelope.ShortHeaderSize])
		if err == io.EOF || (err == io.ErrUnexpectedEOF && n == 0) {
			break
		}
		if err != nil {
			return fmt.Errorf("%s: frame %d: %w", name, index, err)
		}

		hdr, err := envelope.Parse(header[:envelope.ShortHeaderSize])
		if err != nil {
			// Retry assuming the long form; Parse reports the short form's
			// length field first and only needs four more bytes to decide.
			extra := make([]byte, 4)
			if _, err2 := io.ReadFull(r, extra); err2 != nil {
				return fmt.Errorf("%s: frame %d: %w", name, index, err)
			}
			hdr, err = envelope.Parse(append(header[:envelope.ShortHeaderSize], extra...))
			if err != nil {
				return fmt.Errorf("%s: frame %d: %w", name, index, err)
			}
		}

		if err := envelope.CheckFamily(hdr, c.FamilyMarker()); err != nil {
			return fmt.Errorf("%s: frame %d: %w", name, index, err)
		}

		if _, err := io.CopyN(io.Discard, r, int64(hdr.PayloadLen)); err != nil {
			return fmt.Errorf("%s: frame %d: truncated payload: %w", name, index, err)
		}

		hint := hdr.UncompressedHint()
		fmt.Printf("% 8d   % 12d   % 12d\n", index, hdr.PayloadLen, hint)
		totalCompressed += uint64(hdr.PayloadLen)
		totalHint += uint64(hint)
		index++
	}
	fmt.Printf("%d frames, %d bytes compressed, %d bytes uncompressed (hint)\n", index, totalCompressed, totalHint)
	return nil
}
