package csvparse

var delimiterCandidates = []rune{',', ';', '\t', '|'}

const delimiterSampleSize = 10

// detectDelimiter guesses the field separator from the first non-empty
// records. A candidate wins when it splits every sampled record into the same
// number of fields (more than one); ties go to the larger field count. When no
// candidate is consistent the one splitting the first record widest is used.
func detectDelimiter(records []record) (rune, bool) {
	var sample []record
	for _, rec := range records {
		if rec.text == "" {
			continue
		}
		sample = append(sample, rec)
		if len(sample) == delimiterSampleSize {
			break
		}
	}
	if len(sample) == 0 {
		return ',', false
	}

	var best rune
	bestCount := 1
	for _, c := range delimiterCandidates {
		n, ok := consistentCount(sample, c)
		if ok && n > bestCount {
			best, bestCount = c, n
		}
	}
	if best != 0 {
		return best, true
	}

	bestCount = 1
	for _, c := range delimiterCandidates {
		fields, err := readFields(sample[0].text, c)
		if err != nil {
			continue
		}
		if len(fields) > bestCount {
			best, bestCount = c, len(fields)
		}
	}
	if best != 0 {
		return best, true
	}
	return ',', false
}

func consistentCount(sample []record, delim rune) (int, bool) {
	count := -1
	for _, rec := range sample {
		fields, err := readFields(rec.text, delim)
		if err != nil {
			return 0, false
		}
		if count == -1 {
			count = len(fields)
			continue
		}
		if len(fields) != count {
			return 0, false
		}
	}
	return count, count > 1
}
