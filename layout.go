package objectstore

import (
	"github.com/jgraettinger/cockroach-encoding/encoding"
)

// Engine key layout. Every key starts with a tag and the encoded database
// name, so a database occupies four disjoint prefixes.
const (
	metaTag      byte = 'm'
	recordTag    byte = 'r'
	indexTag     byte = 'i'
	generatorTag byte = 'c'
)

var databaseTags = []byte{metaTag, recordTag, indexTag, generatorTag}

func databasePrefix(tag byte, db string) []byte {
	return encoding.EncodeStringAscending([]byte{tag}, db)
}

func metaKey(db string) []byte {
	return databasePrefix(metaTag, db)
}

// recordPrefix is followed by the encoded primary key.
func recordPrefix(db, store string) []byte {
	return encoding.EncodeStringAscending(databasePrefix(recordTag, db), store)
}

func recordKey(prefix, key []byte) []byte {
	out := make([]byte, 0, len(prefix)+len(key))
	return append(append(out, prefix...), key...)
}

func storeIndexPrefix(db, store string) []byte {
	return encoding.EncodeStringAscending(databasePrefix(indexTag, db), store)
}

// indexPrefix is followed by the encoded index key, then the encoded primary
// key. The entry value is the encoded primary key.
func indexPrefix(db, store, index string) []byte {
	return encoding.EncodeStringAscending(storeIndexPrefix(db, store), index)
}

func indexEntryKey(prefix, indexKey, primaryKey []byte) []byte {
	out := make([]byte, 0, len(prefix)+len(indexKey)+len(primaryKey))
	return append(append(append(out, prefix...), indexKey...), primaryKey...)
}

func generatorKey(db, store string) []byte {
	return encoding.EncodeStringAscending(databasePrefix(generatorTag, db), store)
}
