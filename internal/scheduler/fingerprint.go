package scheduler

import (
	"encoding/binary"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/newhook/diaglog/internal/parser"
	"github.com/newhook/diaglog/internal/prescan"
)

// contentFingerprint hashes the lines of a chunk.
func contentFingerprint(lines []string) uint64 {
	d := xxhash.New()
	for _, l := range lines {
		_, _ = d.WriteString(l)
		_, _ = d.Write([]byte{'\n'})
	}
	return d.Sum64()
}

// outcomeDigest hashes every test outcome of a run. Chunks classified
// against different outcomes must not share cache entries.
func outcomeDigest(res *prescan.Result) uint64 {
	ids := make([]string, 0, len(res.Outcomes))
	for id := range res.Outcomes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	d := xxhash.New()
	for _, id := range ids {
		_, _ = d.WriteString(id)
		_, _ = d.Write([]byte{0})
		_, _ = d.WriteString(string(res.Outcomes[id]))
		_, _ = d.Write([]byte{'\n'})
	}
	return d.Sum64()
}

// cacheKey identifies the classification of a chunk: the same content
// classified with the same rules, outcomes and entry state.
func cacheKey(catalogVersion, outcomes uint64, entry parser.State, offset int, content uint64) uint64 {
	buf := make([]byte, 0, 64)
	buf = binary.LittleEndian.AppendUint64(buf, catalogVersion)
	buf = binary.LittleEndian.AppendUint64(buf, outcomes)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(offset))
	buf = binary.LittleEndian.AppendUint64(buf, content)
	buf = append(buf, entry.CurrentTestCase...)
	buf = append(buf, 0)
	buf = append(buf, entry.ActiveSection...)
	if entry.SkipTestCase {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	return xxhash.Sum64(buf)
}
