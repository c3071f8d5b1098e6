package lsm

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"github.com/ssargent/visionfs/pkg/layout"
)

var (
	errBadDescriptor = errors.New("malformed file descriptor")
	errNoFile        = errors.New("not an indexed file")
)

var (
	metaParams = []byte("m/params")
	metaKeys   = []byte("m/keys")
)

const (
	recordTag = 'r'
	indexTag  = 'k'
)

// keySpec is one index as stored in the file descriptor
type keySpec struct {
	unique   bool
	segments []layout.KeySegment
	size     int
}

func (k *keySpec) extract(buf []byte) []byte {
	out := make([]byte, 0, k.size)
	for _, s := range k.segments {
		end := s.Offset + s.Size
		if end > len(buf) {
			// short buffers compare as space padded
			part := append([]byte(nil), buf[min(s.Offset, len(buf)):]...)
			part = append(part, bytes.Repeat([]byte{' '}, s.Size-len(part))...)
			out = append(out, part...)
			continue
		}
		out = append(out, buf[s.Offset:end]...)
	}
	return out
}

// store is one indexed file: a pebble database holding the records under
// "r"+primary key and every alternate key under "k"+index+key+primary key
type store struct {
	path    string
	db      *pebble.DB
	maxSize int
	minSize int
	keys    []keySpec
	refs    int
}

// parseParams reads "max,min,keys"
func parseParams(params string) (maxSize, minSize, nkeys int, err error) {
	parts := strings.Split(params, ",")
	if len(parts) != 3 {
		return 0, 0, 0, errors.Wrapf(errBadDescriptor, "params %q", params)
	}
	var n [3]int
	for i, p := range parts {
		n[i], err = strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return 0, 0, 0, errors.Wrapf(errBadDescriptor, "params %q", params)
		}
	}
	if n[0] <= 0 || n[1] > n[0] || n[2] <= 0 {
		return 0, 0, 0, errors.Wrapf(errBadDescriptor, "params %q", params)
	}
	return n[0], n[1], n[2], nil
}

// parseKeys reads the key descriptors: per key the segment count, the
// duplicates flag, then size and offset of every segment
func parseKeys(info string, nkeys int) ([]keySpec, error) {
	var nums []int
	for _, p := range strings.Split(info, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, errors.Wrapf(errBadDescriptor, "keys %q", info)
		}
		nums = append(nums, n)
	}

	next := func() (int, bool) {
		if len(nums) == 0 {
			return 0, false
		}
		n := nums[0]
		nums = nums[1:]
		return n, true
	}

	keys := make([]keySpec, 0, nkeys)
	for i := 0; i < nkeys; i++ {
		count, ok1 := next()
		dups, ok2 := next()
		if !ok1 || !ok2 || count <= 0 {
			return nil, errors.Wrapf(errBadDescriptor, "keys %q: key %d", info, i)
		}
		k := keySpec{unique: dups == 0}
		for j := 0; j < count; j++ {
			size, ok1 := next()
			offset, ok2 := next()
			if !ok1 || !ok2 || size <= 0 {
				return nil, errors.Wrapf(errBadDescriptor, "keys %q: key %d segment %d", info, i, j)
			}
			k.segments = append(k.segments, layout.KeySegment{Offset: offset, Size: size})
			k.size += size
		}
		keys = append(keys, k)
	}
	if len(nums) != 0 {
		return nil, errors.Wrapf(errBadDescriptor, "keys %q: trailing values", info)
	}
	if keys[0].size == 0 || !keys[0].unique {
		return nil, errors.Wrapf(errBadDescriptor, "keys %q: primary key must be unique", info)
	}
	return keys, nil
}

func createStore(path, params, keyInfo string) error {
	maxSize, _, nkeys, err := parseParams(params)
	if err != nil {
		return err
	}
	keys, err := parseKeys(keyInfo, nkeys)
	if err != nil {
		return err
	}
	for i, k := range keys {
		for _, s := range k.segments {
			if s.Offset+s.Size > maxSize {
				return errors.Wrapf(errBadDescriptor, "key %d outside record of %d bytes", i, maxSize)
			}
		}
	}

	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", path)
	}
	b := db.NewBatch()
	_ = b.Set(metaParams, []byte(params), nil)
	_ = b.Set(metaKeys, []byte(keyInfo), nil)
	if err := b.Commit(pebble.Sync); err != nil {
		_ = db.Close()
		return errors.Wrapf(err, "failed to write descriptor of %s", path)
	}
	return db.Close()
}

func getCopy(db *pebble.DB, key []byte) ([]byte, error) {
	data, closer, err := db.Get(key)
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return append([]byte(nil), data...), nil
}

func openStore(path string) (*store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	params, err := getCopy(db, metaParams)
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(errNoFile, "%s: %v", path, err)
	}
	info, err := getCopy(db, metaKeys)
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(errNoFile, "%s: %v", path, err)
	}

	maxSize, minSize, nkeys, err := parseParams(string(params))
	if err == nil {
		var keys []keySpec
		keys, err = parseKeys(string(info), nkeys)
		if err == nil {
			return &store{path: path, db: db, maxSize: maxSize, minSize: minSize, keys: keys}, nil
		}
	}
	_ = db.Close()
	return nil, err
}

func recordKey(key0 []byte) []byte {
	return append([]byte{recordTag}, key0...)
}

// indexPrefix is the common prefix of every entry of key i
func indexPrefix(i int) []byte {
	if i == 0 {
		return []byte{recordTag}
	}
	return []byte{indexTag, byte(i)}
}

func indexKey(i int, keyPart, key0 []byte) []byte {
	if i == 0 {
		return recordKey(key0)
	}
	k := indexPrefix(i)
	k = append(k, keyPart...)
	return append(k, key0...)
}

// keyPart returns the key value of an index entry
func (s *store) keyPart(i int, entry []byte) []byte {
	p := len(indexPrefix(i))
	return entry[p : p+s.keys[i].size]
}

// upperBound returns the smallest key greater than every key with prefix b
func upperBound(b []byte) []byte {
	end := append([]byte(nil), b...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

func (s *store) iter(i int) (*pebble.Iterator, error) {
	prefix := indexPrefix(i)
	return s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upperBound(prefix)})
}

// entryRecord loads the record an index entry points at
func (s *store) entryRecord(i int, it *pebble.Iterator) (key0, rec []byte, err error) {
	if i == 0 {
		return append([]byte(nil), it.Key()[1:]...), append([]byte(nil), it.Value()...), nil
	}
	key0 = append([]byte(nil), it.Value()...)
	rec, err = getCopy(s.db, recordKey(key0))
	return key0, rec, err
}

func (s *store) exists(key0 []byte) (bool, error) {
	_, closer, err := s.db.Get(recordKey(key0))
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	_ = closer.Close()
	return true, nil
}

// taken reports whether another record already uses value on key i
func (s *store) taken(i int, value, self []byte) (bool, error) {
	prefix := append(indexPrefix(i), value...)
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upperBound(prefix)})
	if err != nil {
		return false, err
	}
	defer it.Close()
	for valid := it.First(); valid; valid = it.Next() {
		if self == nil || !bytes.Equal(it.Value(), self) {
			return true, nil
		}
	}
	return false, it.Error()
}

// put adds the index entries of rec to b
func (s *store) put(b *pebble.Batch, key0, rec []byte) {
	_ = b.Set(recordKey(key0), rec, nil)
	for i := 1; i < len(s.keys); i++ {
		_ = b.Set(indexKey(i, s.keys[i].extract(rec), key0), key0, nil)
	}
}

// remove deletes the record and its index entries from b
func (s *store) remove(b *pebble.Batch, key0, rec []byte) {
	_ = b.Delete(recordKey(key0), nil)
	for i := 1; i < len(s.keys); i++ {
		_ = b.Delete(indexKey(i, s.keys[i].extract(rec), key0), nil)
	}
}
