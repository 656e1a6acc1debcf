package executor

import (
	"fmt"

	"github.com/novasql/novasql/internal/heap"
	"github.com/novasql/novasql/internal/txn"
)

// executorReverter implements txn.WriteReverter against the heap layer, so
// Manager.Abort can undo a transaction's write set. An insert is undone by
// tombstoning its RID; an update is undone by writing OldRow back over the
// same RID. A delete has no Undelete primitive (DeleteTuple discards the
// original slot's offset/length), so its reversal logically re-inserts
// OldRow under a new RID instead of restoring the original one — any index
// entries that pointed at the deleted RID stay stale, the same documented
// limitation syncBTreeIndexesOnUpdateMaybeInsert already carries.
type executorReverter struct {
	db executorDB
}

func (r *executorReverter) RevertWrite(rec txn.WriteRecord) error {
	tbl, err := r.db.OpenTable(rec.TableName)
	if err != nil {
		return fmt.Errorf("executor: revert open table %s: %w", rec.TableName, err)
	}

	rid := heap.TID{PageID: rec.RID.PageID, Slot: rec.RID.Slot}

	switch rec.Type {
	case txn.WriteInsert:
		return tbl.Delete(rid)

	case txn.WriteUpdate:
		if rec.OldRow == nil {
			return fmt.Errorf("executor: revert update %s/%v: no old row image", rec.TableName, rid)
		}
		return tbl.Update(rid, rec.OldRow)

	case txn.WriteDelete:
		if rec.OldRow == nil {
			return fmt.Errorf("executor: revert delete %s/%v: no old row image", rec.TableName, rid)
		}
		_, err := tbl.Insert(rec.OldRow)
		return err

	default:
		return fmt.Errorf("executor: revert: unknown write type %v", rec.Type)
	}
}
