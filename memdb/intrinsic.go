package memdb

import (
	"os"
	"strconv"
	"time"

	"github.com/wippyai/mbridge/codec"
	"github.com/wippyai/mbridge/errors"
)

// horologEpoch is day 0 of $HOROLOG.
var horologEpoch = time.Date(1840, time.December, 31, 0, 0, 0, 0, time.Local)

func horolog(t time.Time) string {
	t = t.In(time.Local)
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.Local)
	days := int(midnight.Sub(horologEpoch).Hours()/24 + 0.5)
	return strconv.Itoa(days) + "," + strconv.Itoa(int(t.Sub(midnight).Seconds()))
}

func (db *DB) intrinsic(name string) (string, error) {
	switch name {
	case "$TLEVEL":
		return strconv.Itoa(len(db.frames)), nil
	case "$ZVERSION":
		return db.features.Version, nil
	case "$ZGBLDIR":
		return db.gbldir, nil
	case "$JOB":
		return strconv.Itoa(os.Getpid()), nil
	case "$ECODE":
		return db.ecode, nil
	case "$ZMAXTPTIME":
		return db.tpTime, nil
	case "$HOROLOG":
		return horolog(time.Now()), nil
	}
	return "", rtErr(errors.CodeInvalidName, "unknown intrinsic variable %s", name)
}

func (db *DB) setIntrinsic(name, value string) error {
	switch name {
	case "$ZGBLDIR":
		db.gbldir = value
	case "$ECODE":
		db.ecode = value
	case "$ZMAXTPTIME":
		n := codec.NumericValue(value)
		if n != "0" && n[0] == '-' {
			return rtErr(errors.CodeInvalidArgs, "$ZMAXTPTIME must not be negative")
		}
		db.tpTime = n
	default:
		if _, err := db.intrinsic(name); err != nil {
			return err
		}
		return rtErr(errors.CodeReadOnly, "%s is read only", name)
	}
	return nil
}
