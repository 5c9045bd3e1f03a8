// bearoff - query, build and check bearoff databases
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bgbearoff/bearoff/internal/bearoff"
	"github.com/bgbearoff/bearoff/internal/config"
	"github.com/bgbearoff/bearoff/internal/positionid"
	"github.com/bgbearoff/bearoff/pkg/engine"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "info":
		err = cmdInfo(args)
	case "eval":
		err = cmdEval(args)
	case "dist":
		err = cmdDist(args)
	case "cubeful":
		err = cmdCubeful(args)
	case "generate":
		err = cmdGenerate(args)
	case "verify":
		err = cmdVerify(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`bearoff - Backgammon Bearoff Databases

Usage: bearoff <command> [options]

Commands:
  info      Describe the loaded databases
  eval      Evaluate a bearoff position
  dist      Print the one-sided distribution of one side
  cubeful   Print the two-sided equities of a position
  generate  Write a one-sided database file
  verify    Scan a database for bad records

Use "bearoff <command> -h" for command-specific help.

Databases are taken from the config file (-config) and BEAROFF_*
environment variables, e.g. BEAROFF_DATABASE_ONE_SIDED=gnubg_os0.bd.
Without a one-sided file an approximate 6-point table is generated.

Positions are given either as a gnubg position ID (-p) or as chequer
counts per point, side on roll first (-board "0,0,0,0,0,3/1,1").`)
}

// commonFlags are shared by the commands that open databases.
type commonFlags struct {
	config      *string
	oneSided    *string
	twoSided    *string
	hypergammon *string
	access      *string
}

func addCommonFlags(fs *flag.FlagSet) *commonFlags {
	return &commonFlags{
		config:      fs.String("config", "", "Config file (yaml, toml or json)"),
		oneSided:    fs.String("os", "", "One-sided database file"),
		twoSided:    fs.String("ts", "", "Two-sided database file"),
		hypergammon: fs.String("hyper", "", "Hypergammon database file"),
		access:      fs.String("access", "", "File access: disk, memory or heap"),
	}
}

// load reads the config and applies flag overrides.
func (c *commonFlags) load() (*config.Config, error) {
	cfg, err := config.Load(*c.config)
	if err != nil {
		return nil, err
	}
	if *c.oneSided != "" {
		cfg.Database.OneSided = *c.oneSided
	}
	if *c.twoSided != "" {
		cfg.Database.TwoSided = *c.twoSided
	}
	if *c.hypergammon != "" {
		cfg.Database.Hypergammon = *c.hypergammon
	}
	if *c.access != "" {
		cfg.Database.Access = *c.access
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Log.Setup()
	return cfg, nil
}

func (c *commonFlags) engine() (*engine.Engine, error) {
	cfg, err := c.load()
	if err != nil {
		return nil, err
	}
	e, err := engine.NewEngine(context.Background(), cfg.EngineOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	return e, nil
}

// positionFlags select a board.
type positionFlags struct {
	position *string
	board    *string
}

func addPositionFlags(fs *flag.FlagSet) *positionFlags {
	return &positionFlags{
		position: fs.String("p", "", "Position ID (gnubg format)"),
		board:    fs.String("board", "", "Chequer counts, on roll first: \"0,0,3/1,1\""),
	}
}

func (p *positionFlags) parse() (engine.Board, error) {
	switch {
	case *p.position != "":
		pos := *p.position
		// Handle gnubg format "positionID:matchID"
		if idx := strings.Index(pos, ":"); idx >= 0 {
			pos = pos[:idx]
		}
		return positionid.BoardFromPositionID(pos)
	case *p.board != "":
		return parseBoard(*p.board)
	default:
		return engine.Board{}, errors.New("position required (-p or -board)")
	}
}

func parseBoard(s string) (engine.Board, error) {
	sides := strings.Split(s, "/")
	if len(sides) != 2 {
		return engine.Board{}, fmt.Errorf("board %q: want \"on-roll/opponent\"", s)
	}
	var counts [2][]uint8
	for i, side := range sides {
		for _, f := range strings.Split(side, ",") {
			f = strings.TrimSpace(f)
			if f == "" {
				f = "0"
			}
			n, err := strconv.ParseUint(f, 10, 8)
			if err != nil {
				return engine.Board{}, fmt.Errorf("board %q: %w", s, err)
			}
			counts[i] = append(counts[i], uint8(n))
		}
		if len(counts[i]) > 25 {
			return engine.Board{}, fmt.Errorf("board %q: more than 25 points", s)
		}
	}
	board := engine.MakeBoard(counts[0], counts[1])
	if !positionid.CheckPosition(board) {
		return board, fmt.Errorf("board %q: %w", s, positionid.ErrInvalidPositionID)
	}
	return board, nil
}

func cmdInfo(args []string) error {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	common := addCommonFlags(fs)
	checksum := fs.Bool("checksum", false, "Also print the xxhash64 of each file")
	fs.Parse(args)

	e, err := common.engine()
	if err != nil {
		return err
	}
	defer e.Close()

	if len(e.Databases()) == 0 {
		fmt.Println("No databases loaded")
		return nil
	}
	for _, db := range e.Databases() {
		info := db.Info()
		fmt.Printf("%s database (%s)\n", info.Type, info.Generator)
		if info.Path != "" {
			fmt.Printf("  File:       %s\n", info.Path)
		}
		fmt.Printf("  Points:     %d\n", info.Points)
		fmt.Printf("  Chequers:   %d\n", info.Chequers)
		fmt.Printf("  Positions:  %d (%d records)\n", info.Positions, info.Records)
		fmt.Printf("  Storage:    %s\n", info.Storage)
		fmt.Printf("  Flags:      cubeful=%t gammon=%t compressed=%t normal=%t heuristic=%t\n",
			info.Cubeful, info.Gammon, info.Compressed, info.ND, info.Heuristic)
		if *checksum {
			sum, err := db.Checksum()
			if err != nil {
				return err
			}
			fmt.Printf("  Checksum:   %016x\n", sum)
		}
	}
	return nil
}

func cmdEval(args []string) error {
	fs := flag.NewFlagSet("eval", flag.ExitOnError)
	common := addCommonFlags(fs)
	pos := addPositionFlags(fs)
	fs.Parse(args)

	board, err := pos.parse()
	if err != nil {
		return err
	}
	e, err := common.engine()
	if err != nil {
		return err
	}
	defer e.Close()

	eval, err := e.Evaluate(board)
	if err != nil {
		return fmt.Errorf("evaluating position: %w", err)
	}

	fmt.Printf("Position: %s (%s)\n", positionid.PositionID(board), eval.Source)
	fmt.Printf("Equity: %+.3f\n", eval.Equity)
	fmt.Printf("  Win:    %.1f%% (G: %.1f%%, BG: %.1f%%)\n",
		eval.WinProb*100, eval.WinG*100, eval.WinBG*100)
	fmt.Printf("  Lose:   %.1f%% (G: %.1f%%, BG: %.1f%%)\n",
		(1-eval.WinProb)*100, eval.LoseG*100, eval.LoseBG*100)
	return nil
}

func cmdDist(args []string) error {
	fs := flag.NewFlagSet("dist", flag.ExitOnError)
	common := addCommonFlags(fs)
	pos := addPositionFlags(fs)
	side := fs.Int("side", 1, "Side to look up: 1 = on roll, 0 = opponent")
	id := fs.Int("id", -1, "One-sided position id instead of a board")
	fs.Parse(args)

	e, err := common.engine()
	if err != nil {
		return err
	}
	defer e.Close()

	var d *engine.SideDistribution
	if *id >= 0 {
		d, err = e.DistributionByID(*id)
	} else {
		var board engine.Board
		if board, err = pos.parse(); err != nil {
			return err
		}
		d, err = e.Distribution(board, *side)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Position %d: %.3f ± %.3f rolls", d.ID, d.AverageRolls[0], d.AverageRolls[1])
	if d.AverageRolls[2] != 0 {
		fmt.Printf(", first off %.3f ± %.3f", d.AverageRolls[2], d.AverageRolls[3])
	}
	fmt.Println()
	fmt.Println("  Rolls   P(off)    P(first off)")
	for i := range d.Prob {
		if d.Prob[i] == 0 && d.Gammon[i] == 0 {
			continue
		}
		fmt.Printf("  %5d   %.5f   %.5f\n", i, d.Prob[i], d.Gammon[i])
	}
	return nil
}

func cmdCubeful(args []string) error {
	fs := flag.NewFlagSet("cubeful", flag.ExitOnError)
	common := addCommonFlags(fs)
	pos := addPositionFlags(fs)
	fs.Parse(args)

	board, err := pos.parse()
	if err != nil {
		return err
	}
	e, err := common.engine()
	if err != nil {
		return err
	}
	defer e.Close()

	id, ev, err := e.Cubeful(board)
	if err != nil {
		return err
	}

	fmt.Printf("Two-sided position %d\n", id)
	labels := []string{"Cubeless", "Owned cube", "Centred cube", "Opponent owns"}
	for i, v := range ev {
		fmt.Printf("  %-14s %+.4f\n", labels[i]+":", v)
	}
	return nil
}

func cmdGenerate(args []string) error {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	common := addCommonFlags(fs)
	out := fs.String("o", "", "Output file")
	points := fs.Int("points", 6, "Points covered by a generated table")
	chequers := fs.Int("chequers", 15, "Chequers covered by a generated table")
	compressed := fs.Bool("compressed", false, "Write the sparse layout")
	gammon := fs.Bool("gammon", false, "Include gammon distributions (needs a source file that has them)")
	fs.Parse(args)

	if *out == "" {
		return errors.New("output file required (-o)")
	}
	cfg, err := common.load()
	if err != nil {
		return err
	}

	// convert an existing one-sided file, or build a new table
	var db *bearoff.Database
	if cfg.Database.OneSided != "" {
		opts := cfg.Database.OpenOptions()
		opts.MustBe = bearoff.TypeOneSided
		db, err = bearoff.Open(cfg.Database.OneSided, opts)
	} else {
		start := time.Now()
		db, err = bearoff.Generate(context.Background(), bearoff.GenerateOptions{
			Points:   *points,
			Chequers: *chequers,
			Interval: 10000,
			Progress: func(done, total int) error {
				log.Info().Int("done", done).Int("total", total).Msg("generating")
				return nil
			},
		})
		if err == nil {
			log.Info().Dur("took", time.Since(start)).Msg("generated one-sided table")
		}
	}
	if err != nil {
		return err
	}
	defer db.Close()

	f, err := os.Create(*out)
	if err != nil {
		return err
	}
	if err := bearoff.WriteOneSided(f, db, bearoff.WriteOptions{Compressed: *compressed, Gammon: *gammon}); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	written, err := bearoff.Open(*out, bearoff.Options{Access: bearoff.AccessOnDisk})
	if err != nil {
		return fmt.Errorf("re-opening %s: %w", *out, err)
	}
	defer written.Close()
	sum, err := written.Checksum()
	if err != nil {
		return err
	}
	fmt.Printf("Wrote %s: %d positions, checksum %016x\n", *out, written.NumPositions(), sum)
	return nil
}

func cmdVerify(args []string) error {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	common := addCommonFlags(fs)
	kind := fs.String("type", "one-sided", "Database to scan: one-sided, two-sided or hypergammon")
	workers := fs.Int("workers", 0, "Number of worker goroutines (0 = auto)")
	tolerance := fs.Float64("tolerance", 0, "Allowed deviation of a distribution total from 1")
	fs.Parse(args)

	e, err := common.engine()
	if err != nil {
		return err
	}
	defer e.Close()

	var db *bearoff.Database
	for _, d := range e.Databases() {
		if d.Type().String() == *kind {
			db = d
		}
	}
	if db == nil {
		return fmt.Errorf("no %s database loaded", *kind)
	}

	start := time.Now()
	report, err := bearoff.Verify(context.Background(), db, bearoff.VerifyOptions{
		Workers:   *workers,
		Tolerance: *tolerance,
		Progress: func(done, total int) {
			log.Debug().Int("done", done).Int("total", total).Msg("verifying")
		},
	})
	if err != nil {
		return err
	}

	fmt.Printf("Verified %d records (%.1fs)\n", report.Records, time.Since(start).Seconds())
	fmt.Printf("  Bad records:   %d\n", report.Bad)
	fmt.Printf("  Max deviation: %.2e\n", report.MaxDeviation)
	if len(report.BadIDs) > 0 {
		fmt.Printf("  First bad ids: %v\n", report.BadIDs)
	}
	if report.Bad > 0 {
		return fmt.Errorf("%d bad records", report.Bad)
	}
	return nil
}
