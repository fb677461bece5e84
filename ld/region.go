package ld

// region is one file-index-bearing unit of parsing: either a whole
// non-archive input, or one member of a static archive (spec.md §3.3's
// "archive record"). Labels are scoped to a region and cleared between
// them.
type region struct {
	name   string
	tokens []token
}

// splitRegions breaks an input's token stream into regions at each
// tokArchive boundary. The first region takes the input's own name; each
// subsequent one takes the name carried by the %filename token that opened
// it. This stands in for the reference linker's fgetpos/fsetpos rewind of
// live archive members (original_source/core/ld/2-full/src/parse.c's
// try_parse_archive/start_file pair) — since the whole input is already in
// memory, a member is just a contiguous subslice of the token stream.
func splitRegions(name string, tokens []token) []region {
	regions := []region{{name: name}}
	for _, t := range tokens {
		if t.kind == tokArchive {
			regions = append(regions, region{name: t.name})
			continue
		}
		last := &regions[len(regions)-1]
		last.tokens = append(last.tokens, t)
	}
	return regions
}
