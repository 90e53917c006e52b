package emerge

// groupParts implements spec.md §4.7's "get emerge parts": walk the
// resolved fragment stream, buffering upload (and small-copy) bytes, and
// flushing whenever a protected copy fragment is reached or the buffer
// grows past recommended+min part size.
func groupParts(fragments []fragment, cfg Config) []Part {
	var parts []Part

	var buf []fragment

	flushBuffer := func() {
		if len(buf) == 0 {
			return
		}

		parts = append(parts, bufferToPart(buf, len(parts)+1))
		buf = nil
	}

	for _, frag := range fragments {
		if frag.copy != nil && frag.length() >= cfg.MinPartSize {
			flushBuffer()
			parts = append(parts, splitCopyFragment(frag, cfg)...)

			continue
		}

		buf = append(buf, frag)

		if bufferedLength(buf) >= cfg.RecommendedPartSize+cfg.MinPartSize {
			head, rest := splitBuffer(buf, cfg.RecommendedPartSize)
			parts = append(parts, bufferToPart(head, len(parts)+1))
			buf = rest
		}
	}

	flushBuffer()

	renumber(parts)

	return parts
}

func bufferedLength(buf []fragment) int64 {
	var n int64
	for _, f := range buf {
		n += f.length()
	}

	return n
}

// splitBuffer splits buf so the head carries exactly target bytes (split
// mid-fragment if needed) and the remainder carries the rest.
func splitBuffer(buf []fragment, target int64) (head, rest []fragment) {
	var accumulated int64

	for i, f := range buf {
		if accumulated+f.length() <= target {
			head = append(head, f)
			accumulated += f.length()

			continue
		}

		remaining := target - accumulated
		if remaining > 0 {
			left, right := splitFragment(f, remaining)
			head = append(head, left)
			rest = append(rest, right)
		} else {
			rest = append(rest, f)
		}

		rest = append(rest, buf[i+1:]...)

		return head, rest
	}

	return head, nil
}

func splitFragment(f fragment, n int64) (left, right fragment) {
	mid := f.start + n
	left = fragment{start: f.start, end: mid}
	right = fragment{start: mid, end: f.end}

	if f.upload != nil {
		left.upload = sliceUpload(*f.upload, 0, n)
		right.upload = sliceUpload(*f.upload, n, f.upload.Length-n)
	} else {
		left.copy = sliceCopy(*f.copy, 0, n)
		right.copy = sliceCopy(*f.copy, n, f.copy.length()-n)
	}

	return left, right
}

// bufferToPart converts a buffered run of fragments into a single part: a
// plain UploadPart when the buffer is exactly one upload fragment, a
// SubpartsPart otherwise (mixed sources, or a small demoted copy mixed in
// with upload bytes per spec.md §4.7).
func bufferToPart(buf []fragment, partNumber int) Part {
	if len(buf) == 1 && buf[0].upload != nil {
		return UploadPart{PartNumber: partNumber, Source: *buf[0].upload}
	}

	subparts := make([]WriteIntent, len(buf))
	for i, f := range buf {
		subparts[i] = WriteIntent{DestinationOffset: f.start, Length: f.length(), Upload: f.upload, Copy: f.copy}
	}

	return SubpartsPart{PartNumber: partNumber, Subparts: subparts}
}

// splitCopyFragment implements spec.md §4.7's copy-splitting formula: given
// a protected copy range of length L, choose the smallest k >= 1 with
// L/k <= MaxPartSize; if the natural remainder would be much smaller than
// L/k, increment k once; assign floor(L/k) bytes per part and distribute
// the extra L mod k bytes one each to the first parts.
func splitCopyFragment(frag fragment, cfg Config) []Part {
	length := frag.length()

	k := int64(1)
	for length/k > cfg.MaxPartSize {
		k++
	}

	remainder := length % k
	if k > 1 && remainder > 0 && remainder < (length/k)/4 {
		// The natural remainder is disproportionately small (< 25% of a
		// full piece); absorb it by adding one more piece so every piece
		// stays closer to L/k rather than one piece ballooning.
		k++
		remainder = length % k
	}

	base := length / k

	out := make([]Part, 0, k)

	var offset int64

	for i := int64(0); i < k; i++ {
		size := base
		if i < remainder {
			size++
		}

		src := sliceCopy(*frag.copy, offset, size)
		out = append(out, CopyPart{PartNumber: len(out) + 1, Source: *src})
		offset += size
	}

	return out
}

// renumber assigns final sequential part numbers after all flushes and
// splits, since splitCopyFragment's provisional numbering can be
// interleaved with flushBuffer calls that happen after it returns.
func renumber(parts []Part) {
	for i := range parts {
		switch p := parts[i].(type) {
		case UploadPart:
			p.PartNumber = i + 1
			parts[i] = p
		case CopyPart:
			p.PartNumber = i + 1
			parts[i] = p
		case SubpartsPart:
			p.PartNumber = i + 1
			parts[i] = p
		}
	}
}
