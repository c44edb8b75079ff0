package object

import "fmt"

// VerifySummary reports the outcome of FSStore.Verify.
type VerifySummary struct {
	Objects int
	Blobs   int
	Trees   int
	Commits int
	Tags    int
}

// Verify re-reads every loose object in the store, checking that each one
// decompresses, carries a well-formed envelope, decodes, and still hashes to
// its id. The first corrupt object aborts with a *CorruptError.
func (s *FSStore) Verify() (*VerifySummary, error) {
	report := &VerifySummary{}
	err := s.ForEachObject(func(h Hash) error {
		o, err := s.Get(h)
		if err != nil {
			return fmt.Errorf("verify %s: %w", h.Short(), err)
		}
		report.Objects++
		switch o.Kind() {
		case KindBlob:
			report.Blobs++
		case KindTree:
			report.Trees++
		case KindCommit:
			report.Commits++
		case KindTag:
			report.Tags++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}
