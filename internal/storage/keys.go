package storage

import "strconv"

// Keyspace builds namespaced keys:
//
//	{prefix}:accounts:{id}         -> JSON account record
//	{prefix}:tag:{tag}:accountId   -> account id
//	{prefix}:accountId:{id}:tag    -> tag
type Keyspace struct {
	Prefix string
}

func (k Keyspace) Account(id string) string {
	return k.Prefix + ":accounts:" + id
}

func (k Keyspace) TagAccount(tag string) string {
	return k.Prefix + ":tag:" + tag + ":accountId"
}

func (k Keyspace) AccountTag(accountID string) string {
	return k.Prefix + ":accountId:" + accountID + ":tag"
}

// FormatTag renders a tag the way it appears inside keys.
func FormatTag(tag uint32) string {
	return strconv.FormatUint(uint64(tag), 10)
}
