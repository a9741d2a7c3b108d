package fonts

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
)

// SubsetTrueType drops the outlines of every glyph not in used (and not
// referenced by a used composite glyph). Glyph ids are preserved so cmap
// lookups and /Widths stay valid; only glyf, loca, hmtx and the counts
// that describe them change. Fonts without glyf outlines are returned as is.
func SubsetTrueType(data []byte, used map[int]bool) ([]byte, error) {
	p, err := parseDirectory(data)
	if err != nil {
		return nil, err
	}
	for _, tag := range []string{"glyf", "loca", "head", "maxp", "hmtx", "hhea"} {
		if _, ok := p.tables[tag]; !ok {
			return data, nil
		}
	}
	head, maxp, hhea := p.table("head"), p.table("maxp"), p.table("hhea")
	if len(head) < 54 || len(maxp) < 6 || len(hhea) < 36 {
		return nil, errors.New("truetype: short head, maxp or hhea")
	}
	longLoca := binary.BigEndian.Uint16(head[50:52]) == 1
	numGlyphs := int(binary.BigEndian.Uint16(maxp[4:6]))
	loca, glyf := p.table("loca"), p.table("glyf")

	offset := func(gid int) (uint32, bool) {
		if longLoca {
			if (gid+1)*4 > len(loca) {
				return 0, false
			}
			return binary.BigEndian.Uint32(loca[gid*4:]), true
		}
		if (gid+1)*2 > len(loca) {
			return 0, false
		}
		return uint32(binary.BigEndian.Uint16(loca[gid*2:])) * 2, true
	}
	glyph := func(gid int) []byte {
		start, ok1 := offset(gid)
		end, ok2 := offset(gid + 1)
		if !ok1 || !ok2 || start >= end || end > uint32(len(glyf)) {
			return nil
		}
		return glyf[start:end]
	}

	keep := map[int]bool{0: true}
	queue := []int{0}
	for gid := range used {
		if gid >= 0 && gid < numGlyphs && !keep[gid] {
			keep[gid] = true
			queue = append(queue, gid)
		}
	}
	for len(queue) > 0 {
		gid := queue[0]
		queue = queue[1:]
		for _, c := range components(glyph(gid)) {
			if c < numGlyphs && !keep[c] {
				keep[c] = true
				queue = append(queue, c)
			}
		}
	}

	last := 0
	for gid := range keep {
		if gid > last {
			last = gid
		}
	}
	n := last + 1

	// glyf and loca, always long offsets
	var newGlyf []byte
	newLoca := make([]byte, 0, (n+1)*4)
	for gid := 0; gid < n; gid++ {
		newLoca = binary.BigEndian.AppendUint32(newLoca, uint32(len(newGlyf)))
		if keep[gid] {
			newGlyf = append(newGlyf, glyph(gid)...)
			for len(newGlyf)%4 != 0 {
				newGlyf = append(newGlyf, 0)
			}
		}
	}
	newLoca = binary.BigEndian.AppendUint32(newLoca, uint32(len(newGlyf)))

	// hmtx with one explicit metric per glyph
	hmtx := p.table("hmtx")
	numMetrics := int(binary.BigEndian.Uint16(hhea[34:36]))
	if numMetrics == 0 || numMetrics*4 > len(hmtx) {
		return nil, errors.New("truetype: inconsistent hmtx")
	}
	newHmtx := make([]byte, 0, n*4)
	for gid := 0; gid < n; gid++ {
		var adv, lsb uint16
		if gid < numMetrics {
			adv = binary.BigEndian.Uint16(hmtx[gid*4:])
			lsb = binary.BigEndian.Uint16(hmtx[gid*4+2:])
		} else {
			adv = binary.BigEndian.Uint16(hmtx[(numMetrics-1)*4:])
			if off := numMetrics*4 + (gid-numMetrics)*2; off+2 <= len(hmtx) {
				lsb = binary.BigEndian.Uint16(hmtx[off:])
			}
		}
		newHmtx = binary.BigEndian.AppendUint16(newHmtx, adv)
		newHmtx = binary.BigEndian.AppendUint16(newHmtx, lsb)
	}

	newHead := append([]byte(nil), head...)
	binary.BigEndian.PutUint16(newHead[50:], 1)
	newMaxp := append([]byte(nil), maxp...)
	binary.BigEndian.PutUint16(newMaxp[4:], uint16(n))
	newHhea := append([]byte(nil), hhea...)
	binary.BigEndian.PutUint16(newHhea[34:], uint16(n))

	out := map[string][]byte{
		"glyf": newGlyf, "loca": newLoca, "hmtx": newHmtx,
		"head": newHead, "maxp": newMaxp, "hhea": newHhea,
	}
	for _, tag := range []string{"cmap", "name", "OS/2", "post", "cvt ", "fpgm", "prep", "gasp"} {
		if t := p.table(tag); t != nil {
			out[tag] = t
		}
	}
	return assemble(out), nil
}

// components lists the glyph ids a composite glyph refers to.
func components(g []byte) []int {
	if len(g) < 10 || int16(binary.BigEndian.Uint16(g)) >= 0 {
		return nil
	}
	var ids []int
	for off := 10; off+4 <= len(g); {
		flags := binary.BigEndian.Uint16(g[off:])
		ids = append(ids, int(binary.BigEndian.Uint16(g[off+2:])))
		off += 4
		if flags&0x0001 != 0 { // ARG_1_AND_2_ARE_WORDS
			off += 4
		} else {
			off += 2
		}
		switch {
		case flags&0x0008 != 0: // WE_HAVE_A_SCALE
			off += 2
		case flags&0x0040 != 0: // WE_HAVE_AN_X_AND_Y_SCALE
			off += 4
		case flags&0x0080 != 0: // WE_HAVE_A_TWO_BY_TWO
			off += 8
		}
		if flags&0x0020 == 0 { // MORE_COMPONENTS
			break
		}
	}
	return ids
}

type sfntDirectory struct {
	data   []byte
	tables map[string][2]uint32
}

func parseDirectory(data []byte) (*sfntDirectory, error) {
	if len(data) < 12 {
		return nil, errors.New("truetype: short header")
	}
	n := int(binary.BigEndian.Uint16(data[4:6]))
	if 12+16*n > len(data) {
		return nil, errors.New("truetype: table directory truncated")
	}
	d := &sfntDirectory{data: data, tables: make(map[string][2]uint32, n)}
	for i := 0; i < n; i++ {
		rec := data[12+16*i:]
		off, length := binary.BigEndian.Uint32(rec[8:]), binary.BigEndian.Uint32(rec[12:])
		if uint64(off)+uint64(length) > uint64(len(data)) {
			return nil, fmt.Errorf("truetype: table %q out of bounds", rec[:4])
		}
		d.tables[string(rec[:4])] = [2]uint32{off, length}
	}
	return d, nil
}

func (d *sfntDirectory) table(tag string) []byte {
	t, ok := d.tables[tag]
	if !ok {
		return nil
	}
	return d.data[t[0] : t[0]+t[1]]
}

// assemble writes an sfnt file with tables in tag order and fixes the head
// checksum adjustment.
func assemble(tables map[string][]byte) []byte {
	tags := make([]string, 0, len(tables))
	for tag := range tables {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	n := len(tags)
	sel := 0
	for 1<<(sel+1) <= n {
		sel++
	}
	searchRange := (1 << sel) * 16

	out := make([]byte, 0, 12+16*n)
	out = binary.BigEndian.AppendUint32(out, 0x00010000)
	out = binary.BigEndian.AppendUint16(out, uint16(n))
	out = binary.BigEndian.AppendUint16(out, uint16(searchRange))
	out = binary.BigEndian.AppendUint16(out, uint16(sel))
	out = binary.BigEndian.AppendUint16(out, uint16(n*16-searchRange))

	offset := 12 + 16*n
	headAt := -1
	for _, tag := range tags {
		t := tables[tag]
		if tag == "head" {
			t = append([]byte(nil), t...)
			binary.BigEndian.PutUint32(t[8:], 0)
			tables[tag] = t
			headAt = offset
		}
		out = append(out, tag...)
		out = binary.BigEndian.AppendUint32(out, checksum(t))
		out = binary.BigEndian.AppendUint32(out, uint32(offset))
		out = binary.BigEndian.AppendUint32(out, uint32(len(t)))
		offset += (len(t) + 3) &^ 3
	}
	for _, tag := range tags {
		t := tables[tag]
		out = append(out, t...)
		for len(out)%4 != 0 {
			out = append(out, 0)
		}
	}
	if headAt >= 0 {
		binary.BigEndian.PutUint32(out[headAt+8:], 0xB1B0AFBA-checksum(out))
	}
	return out
}

func checksum(data []byte) uint32 {
	var sum uint32
	for i := 0; i < len(data); i += 4 {
		var word [4]byte
		copy(word[:], data[i:])
		sum += binary.BigEndian.Uint32(word[:])
	}
	return sum
}
