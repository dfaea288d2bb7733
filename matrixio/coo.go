package matrixio

import (
	"bufio"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/gmaffy/goctar/association"
	"github.com/gmaffy/goctar/pairs"
	"github.com/gmaffy/goctar/utils"
	"github.com/samber/lo"
)

// ReadNames reads the first field of every non-empty line.
func ReadNames(path string) ([]string, error) {
	rc, err := utils.OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var names []string
	scanner := bufio.NewScanner(rc)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		names = append(names, fields[0])
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if dup := lo.FindDuplicates(names); len(dup) > 0 {
		return nil, fmt.Errorf("%s: duplicate names, first %q", path, dup[0])
	}
	return names, nil
}

// ReadBED reads chrom, start, end and an optional name column. Unnamed peaks are
// called chrom:start-end.
func ReadBED(path string) ([]pairs.Region, []string, error) {
	rc, err := utils.OpenReader(path)
	if err != nil {
		return nil, nil, err
	}
	defer rc.Close()

	var (
		regions []pairs.Region
		names   []string
		lineNo  int
	)
	scanner := bufio.NewScanner(rc)
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "track") || strings.HasPrefix(line, "browser") {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 3 {
			return nil, nil, fmt.Errorf("%s line %d: expected at least 3 columns", path, lineNo)
		}
		start, err1 := strconv.Atoi(fields[1])
		end, err2 := strconv.Atoi(fields[2])
		if err1 != nil || err2 != nil {
			return nil, nil, fmt.Errorf("%s line %d: bad coordinates %q %q", path, lineNo, fields[1], fields[2])
		}
		r := pairs.Region{Chrom: fields[0], Start: start, End: end}
		name := fmt.Sprintf("%s:%d-%d", r.Chrom, r.Start, r.End)
		if len(fields) > 3 && fields[3] != "" && fields[3] != "." {
			name = fields[3]
		}
		regions = append(regions, r)
		names = append(names, name)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return regions, names, nil
}

// IndexOf maps each name to its position.
func IndexOf(names []string) map[string]int {
	return lo.SliceToMap(lo.Range(len(names)), func(i int) (string, int) {
		return names[i], i
	})
}

// ReadCOO reads "cell<TAB>feature<TAB>value" triplets into one sparse vector per feature,
// each of length len(cells). Repeated (cell, feature) entries are summed. Lines starting
// with '%' or '#' are comments.
func ReadCOO(path string, cells, features map[string]int) ([]association.SparseVector, error) {
	rc, err := utils.OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	type entry struct {
		cell  int
		value float64
	}
	cols := make([][]entry, len(features))

	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" || line[0] == '%' || line[0] == '#' {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, fmt.Errorf("%s line %d: expected cell, feature, value", path, lineNo)
		}
		c, ok := cells[fields[0]]
		if !ok {
			return nil, fmt.Errorf("%s line %d: unknown cell %q", path, lineNo, fields[0])
		}
		f, ok := features[fields[1]]
		if !ok {
			return nil, fmt.Errorf("%s line %d: unknown feature %q", path, lineNo, fields[1])
		}
		v, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, lineNo, err)
		}
		if v < 0 {
			return nil, fmt.Errorf("%s line %d: negative count %v", path, lineNo, v)
		}
		cols[f] = append(cols[f], entry{cell: c, value: v})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	out := make([]association.SparseVector, len(features))
	for f, col := range cols {
		sort.SliceStable(col, func(a, b int) bool { return col[a].cell < col[b].cell })
		v := association.SparseVector{N: len(cells)}
		for _, e := range col {
			if n := len(v.Index); n > 0 && v.Index[n-1] == e.cell {
				v.Value[n-1] += e.value
				continue
			}
			v.Index = append(v.Index, e.cell)
			v.Value = append(v.Value, e.value)
		}
		out[f] = dropZeros(v)
	}
	return out, nil
}

func dropZeros(v association.SparseVector) association.SparseVector {
	out := association.SparseVector{N: v.N}
	for k, i := range v.Index {
		if v.Value[k] != 0 {
			out.Index = append(out.Index, i)
			out.Value = append(out.Value, v.Value[k])
		}
	}
	return out
}

// ReadDenseCOO is ReadCOO with every feature expanded to a dense vector.
func ReadDenseCOO(path string, cells, features map[string]int) ([][]float64, error) {
	sparse, err := ReadCOO(path, cells, features)
	if err != nil {
		return nil, err
	}
	out := make([][]float64, len(sparse))
	for i, v := range sparse {
		out[i] = v.Dense(nil)
	}
	return out, nil
}
