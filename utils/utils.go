package utils

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config mirrors the Key: value config file. Set records which keys were present,
// so command-line flags can tell a configured zero from an absent key.
type Config struct {
	Accessibility string
	Peaks         string
	Cells         string
	Expression    string
	Genes         string
	Pairs         string
	Fasta         string
	CellTypes     string
	OutputDir     string

	Bins             int
	GCBins           int
	Controls         int
	Seed             uint64
	Mode             string
	Policy           string
	Null             string
	Threads          int
	Window           int
	PromoterDistance int
	MinPct           float64
	MinMean          float64
	Alternative      string
	Binarize         bool
	Stratify         bool

	Set map[string]bool
}

func ReadConfig(configPath string) (Config, error) {
	configFile, err := os.Open(configPath)
	if err != nil {
		return Config{}, err
	}
	defer configFile.Close()
	cfg := Config{Set: make(map[string]bool)}

	scanner := bufio.NewScanner(configFile)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		switch key {
		case "Accessibility":
			cfg.Accessibility = value
		case "Peaks":
			cfg.Peaks = value
		case "Cells":
			cfg.Cells = value
		case "Expression":
			cfg.Expression = value
		case "Genes":
			cfg.Genes = value
		case "Pairs":
			cfg.Pairs = value
		case "Fasta":
			cfg.Fasta = value
		case "CellTypes":
			cfg.CellTypes = value
		case "OutputDir":
			cfg.OutputDir = value
		case "Mode":
			cfg.Mode = value
		case "Policy":
			cfg.Policy = value
		case "Null":
			cfg.Null = value
		case "Alternative":
			cfg.Alternative = value

		case "Bins":
			err = parseInt(value, &cfg.Bins)
		case "GCBins":
			err = parseInt(value, &cfg.GCBins)
		case "Controls":
			err = parseInt(value, &cfg.Controls)
		case "Threads":
			err = parseInt(value, &cfg.Threads)
		case "Window":
			err = parseInt(value, &cfg.Window)
		case "PromoterDistance":
			err = parseInt(value, &cfg.PromoterDistance)
		case "Seed":
			cfg.Seed, err = strconv.ParseUint(value, 10, 64)
		case "MinPct":
			cfg.MinPct, err = strconv.ParseFloat(value, 64)
		case "MinMean":
			cfg.MinMean, err = strconv.ParseFloat(value, 64)
		case "Binarize":
			cfg.Binarize, err = strconv.ParseBool(value)
		case "Stratify":
			cfg.Stratify, err = strconv.ParseBool(value)
		default:
			continue
		}
		if err != nil {
			return cfg, fmt.Errorf("%s line %d: bad value for %s: %w", configPath, lineNo, key, err)
		}
		cfg.Set[key] = true
	}

	if err := scanner.Err(); err != nil {
		return cfg, err
	}

	return cfg, nil

}

func parseInt(value string, dst *int) error {
	v, err := strconv.Atoi(value)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}
