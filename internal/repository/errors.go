package repository

import "errors"

// ErrNotFound is returned by KV.Get when a key has never been written or has
// been deleted. It abstracts away backend errors such as sql.ErrNoRows and
// redis.Nil.
var ErrNotFound = errors.New("repository: not found")
