package main

import (
	"sort"
	"sync"
)

// Room tracks the nicknames of the members connected to this server.
type Room struct {
	mx      sync.Mutex
	members map[string]string
}

func NewRoom() *Room {
	return &Room{members: map[string]string{}}
}

func (r *Room) Join(id string) {
	r.mx.Lock()
	defer r.mx.Unlock()
	r.members[id] = "anonymous"
}

func (r *Room) Leave(id string) string {
	r.mx.Lock()
	defer r.mx.Unlock()
	name := r.members[id]
	delete(r.members, id)
	return name
}

func (r *Room) Rename(id string, name string) {
	r.mx.Lock()
	defer r.mx.Unlock()
	if _, ok := r.members[id]; ok {
		r.members[id] = name
	}
}

func (r *Room) Name(id string) string {
	r.mx.Lock()
	defer r.mx.Unlock()
	return r.members[id]
}

func (r *Room) Members() []string {
	r.mx.Lock()
	defer r.mx.Unlock()
	ids := make([]string, 0, len(r.members))
	for id := range r.members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
