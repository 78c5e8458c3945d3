package kvstore

import "context"

// MergeInto drains from's full range into dst, one key at a time, so
// concrete tiers can implement Merger by delegating to a single shared
// traversal instead of reimplementing the walk. Deletions
// (tombstones observed during the traversal) are applied as removes;
// everything else is applied as a write.
func MergeInto(ctx context.Context, dst Writer, from Ranger) error {
	it, err := from.Range(ctx, nil, nil)
	if err != nil {
		return err
	}
	defer it.Release()

	for it.Next() {
		re := it.Entry()
		if re.Entry.Deleted() {
			if err := dst.RemoveSome(ctx, []StateKey{re.Key}); err != nil {
				return err
			}
			continue
		}
		if err := dst.WriteOne(ctx, re.Key, re.Entry.Value); err != nil {
			return err
		}
	}
	return it.Error()
}
