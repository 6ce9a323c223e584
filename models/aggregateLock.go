package models

import (
	"fmt"

	"gorm.io/gorm"
)

// AcquireAggregateLock serializes commands on one aggregate instance across
// app instances using MySQL advisory locks (count:<biz>:<id>, variance:<biz>:<id>, ...).
// NOTE: GET_LOCK is connection-scoped, so this must be called on the same
// *gorm.DB that runs the command transaction.
func AcquireAggregateLock(tx *gorm.DB, kind string, businessId string, id int) error {
	lockName := fmt.Sprintf("%s:%s:%d", kind, businessId, id)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire %s lock for business_id=%s id=%d", kind, businessId, id)
	}
	return nil
}

func ReleaseAggregateLock(tx *gorm.DB, kind string, businessId string, id int) {
	lockName := fmt.Sprintf("%s:%s:%d", kind, businessId, id)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}
