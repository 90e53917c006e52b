package syncfs

// Pair is one merge-joined row: Source and/or Dest is present depending on
// which side(s) have a SyncPath at this relative_path. HaveSource and
// HaveDest track which fields are meaningful, since SyncPath's zero value is indistinguishable
// from "a path with an empty RelativePath".
type Pair struct {
	Source     SyncPath
	Dest       SyncPath
	HaveSource bool
	HaveDest   bool
}

// ZipFolders merge-joins two ascending-order PathIterators by
// RelativePath, yielding one Pair per distinct path: (source, none),
// (none, dest), or (source, dest) — spec.md §4.10's "zip-folders merge".
// Needs only one-step lookahead on each side, via PathIterator.Peek.
func ZipFolders(source, dest *PathIterator) ([]Pair, error) {
	var pairs []Pair

	for {
		srcPath, haveSrc, err := source.Peek()
		if err != nil {
			return nil, err
		}

		dstPath, haveDst, err := dest.Peek()
		if err != nil {
			return nil, err
		}

		switch {
		case !haveSrc && !haveDst:
			return pairs, nil
		case haveSrc && (!haveDst || srcPath.RelativePath < dstPath.RelativePath):
			pairs = append(pairs, Pair{Source: srcPath, HaveSource: true})
			_, _, _ = source.Next()
		case haveDst && (!haveSrc || dstPath.RelativePath < srcPath.RelativePath):
			pairs = append(pairs, Pair{Dest: dstPath, HaveDest: true})
			_, _, _ = dest.Next()
		default:
			pairs = append(pairs, Pair{Source: srcPath, Dest: dstPath, HaveSource: true, HaveDest: true})
			_, _, _ = source.Next()
			_, _, _ = dest.Next()
		}
	}
}
