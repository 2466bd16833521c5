// Command nfcdecode replays a raw interleaved float32 I/Q capture (or a
// single-channel logic trace) from disk through the decode pipeline and
// prints the parsed protocol frames, one per line.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"

	"github.com/cwsl/nfcdecode/frame"
	"github.com/cwsl/nfcdecode/metrics"
	"github.com/cwsl/nfcdecode/pipeline"
	"github.com/cwsl/nfcdecode/sample"
)

const chunkSamples = 4096

func main() {
	input := flag.String("in", "", "path to a raw float32 sample file")
	configPath := flag.String("config", "", "path to a YAML pipeline config (optional)")
	logic := flag.Bool("logic", false, "treat the input as single-channel logic samples instead of I/Q")
	flag.Parse()

	if *input == "" {
		log.Fatal("nfcdecode: -in is required")
	}

	cfg := pipeline.DefaultConfig()
	if *configPath != "" {
		loaded, err := pipeline.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("nfcdecode: load config: %v", err)
		}
		cfg = loaded
	}

	m := metrics.New()
	drv, err := pipeline.New(cfg, m, "")
	if err != nil {
		log.Fatalf("nfcdecode: build driver: %v", err)
	}
	drv.Run()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for tree := range drv.Frames() {
			printTree(tree, 0)
		}
	}()

	if err := feed(*input, *logic, cfg.SampleRate, drv); err != nil {
		log.Fatalf("nfcdecode: %v", err)
	}
	if err := drv.Close(); err != nil {
		log.Fatalf("nfcdecode: close: %v", err)
	}
	<-done
}

// feed reads path as little-endian float32 samples and submits them to drv
// in fixed-size chunks, mirroring a bounded-buffer capture source.
func feed(path string, logicTrace bool, sampleRate float64, drv *pipeline.Driver) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	stride := 2
	typ := sample.TypeRawIQ
	if logicTrace {
		stride = 1
		typ = sample.TypeRawLogic
	}

	var offset int64
	raw := make([]byte, chunkSamples*stride*4)
	for {
		n, err := io.ReadFull(f, raw)
		if n == 0 {
			if err == io.EOF {
				return nil
			}
			return err
		}
		elements := n / 4
		elements -= elements % stride

		buf, berr := sample.New(elements, stride, typ, sampleRate, offset)
		if berr != nil {
			return berr
		}
		floats := make([]float32, elements)
		for i := range floats {
			bits := binary.LittleEndian.Uint32(raw[i*4:])
			floats[i] = math.Float32frombits(bits)
		}
		buf.Put(floats)
		buf.Flip()
		offset += int64(elements / stride)

		if serr := drv.Submit(buf); serr != nil {
			log.Printf("nfcdecode: %v", serr)
		}

		if err == io.ErrUnexpectedEOF || err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func printTree(node *frame.Protocol, depth int) {
	indent := ""
	for i := 0; i < depth; i++ {
		indent += "  "
	}
	flagStr := ""
	if node.Flags != 0 {
		flagStr = " [" + node.Flags.String() + "]"
	}
	fmt.Printf("%s%s = %s%s\n", indent, node.Name, node.Value.String(), flagStr)
	for _, child := range node.Children {
		printTree(child, depth+1)
	}
}
