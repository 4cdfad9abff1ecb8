package main

import (
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"civforge.ai/internal/sim/encoding"
	"civforge.ai/internal/sim/tuning"
	"civforge.ai/internal/sim/world/terrain"
	"civforge.ai/internal/sim/world/terrain/fields"
	"civforge.ai/internal/sim/world/terrain/gen"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "cell":
			cellCmd(os.Args[2:])
			return
		case "chunk":
			chunkCmd(os.Args[2:])
			return
		case "overlay":
			overlayCmd(os.Args[2:])
			return
		case "bootstrap":
			bootstrapCmd(os.Args[2:])
			return
		case "reset":
			resetCmd(os.Args[2:])
			return
		}
	}
	fmt.Fprintln(os.Stderr, "usage: admin <cell|chunk|overlay|bootstrap|reset> [flags]")
	os.Exit(2)
}

type worldFlags struct {
	config *string
	seed   *string
	size   *int
}

func addWorldFlags(fs *flag.FlagSet) worldFlags {
	return worldFlags{
		config: fs.String("config", "", "path to terrain.yaml (optional)"),
		seed:   fs.String("seed", "", "world seed (overrides config)"),
		size:   fs.Int("size", 0, "world size (overrides config)"),
	}
}

// generator builds the same generator the server would for these flags.
// Terrain is a pure function of (seed, size), so no server is needed.
func (w worldFlags) generator() *terrain.Generator {
	tune, err := tuning.Load(*w.config)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	if s := strings.TrimSpace(*w.seed); s != "" {
		tune.WorldSeed = s
	}
	if *w.size > 0 {
		tune.WorldSize = *w.size
	}
	return terrain.New(tune.TerrainConfig())
}

func cellCmd(args []string) {
	fs := flag.NewFlagSet("cell", flag.ExitOnError)
	wf := addWorldFlags(fs)
	x := fs.Int("x", 0, "world x")
	y := fs.Int("y", 0, "world y")
	_ = fs.Parse(args)

	c, err := wf.generator().GetCell(*x, *y)
	if err != nil {
		fmt.Fprintln(os.Stderr, "cell:", err)
		os.Exit(2)
	}
	b, _ := json.MarshalIndent(c, "", "  ")
	fmt.Println(string(b))
}

func chunkCmd(args []string) {
	fs := flag.NewFlagSet("chunk", flag.ExitOnError)
	wf := addWorldFlags(fs)
	cx := fs.Int("cx", 0, "chunk x")
	cy := fs.Int("cy", 0, "chunk y")
	lodFlag := fs.Int("lod", 0, "level of detail (0-2)")
	_ = fs.Parse(args)

	lod, err := gen.ValidateLOD(*lodFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, "chunk:", err)
		os.Exit(2)
	}
	g := wf.generator()
	ch, err := g.GenerateChunk(*cx, *cy, lod)
	if err != nil {
		fmt.Fprintln(os.Stderr, "chunk:", err)
		os.Exit(2)
	}
	s, err := summarize(ch, g.Limits())
	if err != nil {
		fmt.Fprintln(os.Stderr, "chunk:", err)
		os.Exit(1)
	}
	fmt.Print(s)
}

// summarize renders the biome histogram, digest and wire sizes of a chunk.
func summarize(ch *gen.ChunkData, lim terrain.Limits) (string, error) {
	p, err := encoding.SerializeChunk(ch)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	frame, err := encoding.EncodeFrame(p)
	if err != nil {
		return "", err
	}

	counts := map[fields.Biome]int{}
	total := 0
	switch ch.LOD {
	case gen.LOD0:
		for _, c := range ch.Cells {
			counts[c.Biome]++
		}
		total = len(ch.Cells)
	case gen.LOD1:
		for _, b := range ch.Blocks {
			counts[b.Biome]++
		}
		total = len(ch.Blocks)
	case gen.LOD2:
		for b, n := range ch.Coverage {
			counts[b] = n
		}
		total = ch.Samples
	}
	biomes := make([]fields.Biome, 0, len(counts))
	for b := range counts {
		biomes = append(biomes, b)
	}
	sort.Slice(biomes, func(i, j int) bool {
		return counts[biomes[i]] > counts[biomes[j]] || (counts[biomes[i]] == counts[biomes[j]] && biomes[i] < biomes[j])
	})

	var sb strings.Builder
	d := ch.Digest()
	fmt.Fprintf(&sb, "chunk (%d,%d) lod %d\n", ch.Coord.CX, ch.Coord.CY, ch.LOD)
	fmt.Fprintf(&sb, "digest  %s\n", hex.EncodeToString(d[:]))
	fmt.Fprintf(&sb, "compact %s\n", humanize.IBytes(uint64(len(raw))))
	fmt.Fprintf(&sb, "zstd    %s\n", humanize.IBytes(uint64(len(frame))))
	if err := lim.CheckPayload(len(raw)); err != nil {
		fmt.Fprintf(&sb, "warning %v\n", err)
	}
	for _, b := range biomes {
		fmt.Fprintf(&sb, "  %-9s %5d  %5.1f%%\n", b, counts[b], 100*float64(counts[b])/float64(total))
	}
	return sb.String(), nil
}
