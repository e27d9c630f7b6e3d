package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"time"
)

func runLogsCmd(args []string) error {
	fs := flag.NewFlagSet("logs", flag.ContinueOnError)
	lines := fs.Int("n", 20, "number of trailing lines to print")
	follow := fs.Bool("f", false, "follow the log file for new lines")
	if err := fs.Parse(args); err != nil {
		return err
	}

	path := logFilePath()
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open log file %s: %w", path, err)
	}
	defer file.Close()

	tail, err := readTailLines(file, *lines)
	if err != nil {
		return err
	}
	for _, line := range tail {
		fmt.Println(line)
	}

	if !*follow {
		return nil
	}

	reader := bufio.NewReader(file)
	for {
		line, err := reader.ReadString('\n')
		if len(line) > 0 {
			fmt.Print(line)
		}
		if err == io.EOF {
			time.Sleep(500 * time.Millisecond)
			continue
		}
		if err != nil {
			return fmt.Errorf("read log file: %w", err)
		}
	}
}

// readTailLines returns up to n trailing lines of file, read in one pass
// from the start (simple and fine for a local daemon log, not a
// multi-gigabyte stream).
func readTailLines(file *os.File, n int) ([]string, error) {
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var all []string
	for scanner.Scan() {
		all = append(all, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan log file: %w", err)
	}

	if len(all) <= n {
		return all, nil
	}
	return all[len(all)-n:], nil
}
