/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/kballard/go-shellquote"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"
	"github.com/ssargent/visionfs/pkg/engine"
	"github.com/ssargent/visionfs/pkg/record"
	"github.com/ssargent/visionfs/pkg/vision"
)

var errNoFile = errors.New("no file open (use 'open <name>')")

var errNoRecord = errors.New("no current record (use 'new', 'read' or 'next')")

// shellCmd represents the shell command
var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Browse and edit files interactively",
	Long: `Start an interactive shell over the loaded definitions. One file is
open at a time; reads make the record they return current, and set,
write, rewrite and delete act on the current record.

Type 'help' inside the shell for the command list.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fs, err := container.FileSystem()
		if err != nil {
			return err
		}
		sh := newShell(fs, cmd.OutOrStdout())
		defer sh.closeFile()
		return sh.run()
	},
}

func init() {
	rootCmd.AddCommand(shellCmd)
}

// shell is the interactive command loop
type shell struct {
	fs      *vision.FileSystem
	out     io.Writer
	file    *vision.File
	current *record.Record
	liner   *liner.State
}

func newShell(fs *vision.FileSystem, out io.Writer) *shell {
	return &shell{fs: fs, out: out}
}

var shellCommands = []string{
	"open", "close", "files", "fields", "new", "set", "show", "start",
	"next", "prev", "read", "write", "rewrite", "delete", "unlock",
	"help", "exit", "quit",
}

// historyFile returns the path to the history file
func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".visionfs_history")
}

func (s *shell) run() error {
	s.liner = liner.NewLiner()
	defer s.liner.Close()

	s.liner.SetCtrlCAborts(true)
	s.liner.SetCompleter(s.completer)

	if f, err := os.Open(historyFile()); err == nil {
		_, _ = s.liner.ReadHistory(f)
		f.Close()
	}
	defer s.saveHistory()

	fmt.Fprintf(s.out, "visionfs shell (%d definitions)\n", len(s.fs.Definitions()))
	fmt.Fprintln(s.out, "Type 'help' for available commands.")

	for {
		line, err := s.liner.Prompt(s.prompt())
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(s.out, "\nBye!")
				return nil
			}
			return errors.Wrap(err, "reading input")
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		s.liner.AppendHistory(line)

		if s.exec(line) {
			fmt.Fprintln(s.out, "Bye!")
			return nil
		}
	}
}

func (s *shell) prompt() string {
	if s.file == nil {
		return "visionfs> "
	}
	return fmt.Sprintf("visionfs:%s> ", strings.ToLower(s.file.Definition().FileName))
}

// saveHistory persists command history to disk
func (s *shell) saveHistory() {
	if path := historyFile(); path != "" {
		if f, err := os.Create(path); err == nil {
			_, _ = s.liner.WriteHistory(f)
			f.Close()
		}
	}
}

// completer provides tab completion for commands and file names
func (s *shell) completer(line string) []string {
	var out []string
	if cmd, prefix, ok := strings.Cut(line, " "); ok {
		if cmd != "open" {
			return nil
		}
		for _, def := range s.fs.Definitions() {
			name := strings.ToLower(def.FileName)
			if strings.HasPrefix(name, strings.ToLower(prefix)) {
				out = append(out, "open "+name)
			}
		}
		return out
	}
	for _, c := range shellCommands {
		if strings.HasPrefix(c, strings.ToLower(line)) {
			out = append(out, c)
		}
	}
	return out
}

// exec runs one input line and reports whether the shell should exit.
// Errors are printed, never returned.
func (s *shell) exec(line string) bool {
	words, err := shellquote.Split(line)
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return false
	}
	if len(words) == 0 {
		return false
	}

	cmd, args := strings.ToLower(words[0]), words[1:]
	switch cmd {
	case "exit", "quit", "q":
		return true
	case "help", "?":
		s.printHelp()
		return false
	}

	if err := s.dispatch(cmd, args); err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
	}
	return false
}

func (s *shell) dispatch(cmd string, args []string) error {
	switch cmd {
	case "files", "ls":
		return outputDefinitions(s.out, formatTable, s.fs.Definitions())
	case "open":
		return s.cmdOpen(args)
	case "close":
		return s.closeFile()
	}

	if s.file == nil {
		return errNoFile
	}
	switch cmd {
	case "fields":
		return s.cmdFields()
	case "new":
		s.current = s.file.NewRecord()
		return nil
	case "set":
		return s.cmdSet(args)
	case "show":
		if s.current == nil {
			return errNoRecord
		}
		return outputRecord(s.out, formatTable, s.current)
	case "start":
		return s.cmdStart(args)
	case "next", "prev":
		return s.cmdStep(cmd == "next", args)
	case "read":
		return s.cmdRead(args)
	case "write", "rewrite", "delete":
		return s.cmdModify(cmd)
	case "unlock":
		return s.file.Unlock()
	}
	return errors.Newf("unknown command: %s (type 'help' for commands)", cmd)
}

// cmdOpen handles: open <name> [input|io]
func (s *shell) cmdOpen(args []string) error {
	if len(args) == 0 || len(args) > 2 {
		return errors.New("usage: open <name> [input|io]")
	}
	mode := engine.Input
	if len(args) == 2 {
		switch strings.ToLower(args[1]) {
		case "input", "i":
		case "io", "i-o", "inputoutput":
			mode = engine.InputOutput
		default:
			return errors.Newf("unknown open mode %q", args[1])
		}
	}

	f, err := openFile(s.fs, args[0], mode)
	if err != nil {
		return err
	}
	if err := s.closeFile(); err != nil {
		f.Dispose()
		return err
	}
	s.file = f
	fmt.Fprintf(s.out, "Opened %s (%s)\n", f.Definition().FileName, mode)
	return nil
}

func (s *shell) closeFile() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	s.current = nil
	return err
}

func (s *shell) cmdFields() error {
	def := s.file.Definition()
	for i, k := range def.Keys {
		names := make([]string, 0, len(k.Fields))
		for _, f := range k.Fields {
			names = append(names, f.Name)
		}
		fmt.Fprintf(s.out, "key %d: %s (unique=%v)\n", i, strings.Join(names, ", "), k.Unique)
	}
	return outputRecord(s.out, formatTable, s.file.NewRecord())
}

// cmdSet handles: set FIELD=VALUE...
func (s *shell) cmdSet(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: set FIELD=VALUE...")
	}
	if s.current == nil {
		s.current = s.file.NewRecord()
	}
	return assign(s.current, args)
}

// cmdStart handles: start <key> <mode> [FIELD=VALUE...]
func (s *shell) cmdStart(args []string) error {
	if len(args) < 2 {
		return errors.New("usage: start <key> <eq|gt|ge|lt|le> [FIELD=VALUE...]")
	}
	keyIndex, err := strconv.Atoi(args[0])
	if err != nil {
		return errors.Newf("invalid key %q", args[0])
	}
	mode, ok := engine.ParseStartMode(strings.ToLower(args[1]))
	if !ok {
		return errors.Newf("unknown start mode %q", args[1])
	}

	found, err := start(s.file, scanOptions{keyIndex: keyIndex, mode: mode, starts: args[2:]})
	if err != nil {
		return err
	}
	if !found {
		fmt.Fprintln(s.out, "Not found")
	}
	return nil
}

// cmdStep handles: next [n] and prev [n]
func (s *shell) cmdStep(forward bool, args []string) error {
	n := 1
	if len(args) > 0 {
		var err error
		if n, err = strconv.Atoi(args[0]); err != nil || n < 1 {
			return errors.Newf("invalid count %q", args[0])
		}
	}

	var records []*record.Record
	for len(records) < n {
		var rec *record.Record
		var err error
		if forward {
			rec, err = s.file.ReadNext()
		} else {
			rec, err = s.file.ReadPrevious()
		}
		if err != nil {
			return err
		}
		if rec == nil {
			break
		}
		records = append(records, rec)
	}

	if len(records) == 0 {
		fmt.Fprintln(s.out, "End of file")
		return nil
	}
	s.current = records[len(records)-1]
	if len(records) == 1 {
		return outputRecord(s.out, formatTable, s.current)
	}
	return outputRecords(s.out, formatTable, records)
}

// cmdRead handles: read <key> FIELD=VALUE...
func (s *shell) cmdRead(args []string) error {
	if len(args) < 2 {
		return errors.New("usage: read <key> FIELD=VALUE...")
	}
	keyIndex, err := strconv.Atoi(args[0])
	if err != nil {
		return errors.Newf("invalid key %q", args[0])
	}
	key := s.file.NewRecord()
	if err := assign(key, args[1:]); err != nil {
		return err
	}

	rec, err := s.file.Read(key, keyIndex)
	if err != nil {
		return err
	}
	if rec == nil {
		fmt.Fprintln(s.out, "Not found")
		return nil
	}
	s.current = rec
	return outputRecord(s.out, formatTable, rec)
}

func (s *shell) cmdModify(op string) error {
	if s.current == nil {
		return errNoRecord
	}
	var err error
	switch op {
	case "write":
		err = s.file.Write(s.current)
	case "rewrite":
		err = s.file.Rewrite(s.current)
	default:
		err = s.file.Delete(s.current)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(s.out, "OK")
	return nil
}

func (s *shell) printHelp() {
	help := map[string]string{
		"files":                       "List loaded definitions",
		"open <name> [input|io]":      "Open a file, read-only unless io is given",
		"close":                       "Close the open file",
		"fields":                      "Show keys and fields of the open file",
		"new":                         "Start a blank current record",
		"set FIELD=VALUE...":          "Set fields of the current record",
		"show":                        "Show the current record",
		"start <key> <mode> [F=V...]": "Position on a key (eq, gt, ge, lt, le)",
		"next [n] / prev [n]":         "Read forward or backward",
		"read <key> F=V...":           "Read one record by key",
		"write / rewrite / delete":    "Modify the file with the current record",
		"unlock":                      "Release record locks",
		"exit":                        "Leave the shell",
	}
	names := make([]string, 0, len(help))
	for name := range help {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(s.out, "Commands:")
	for _, name := range names {
		fmt.Fprintf(s.out, "  %-28s %s\n", name, help[name])
	}
}
