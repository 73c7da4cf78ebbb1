// Package common — random.go содержит потокобезопасный генератор случайных чисел.
package common

import (
	"math/rand"
	"sync"
	"time"
)

// Random — источник случайности для игровых механик.
// В тестах подменяется детерминированной реализацией.
type Random interface {
	Float64() float64
	Intn(n int) int
}

// LockedRand — *rand.Rand под мьютексом (rand.Rand сам по себе не потокобезопасен).
type LockedRand struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewLockedRand создаёт генератор; seed == 0 означает «от текущего времени».
func NewLockedRand(seed int64) *LockedRand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &LockedRand{rnd: rand.New(rand.NewSource(seed))}
}

// Float64 возвращает число из [0, 1).
func (r *LockedRand) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rnd.Float64()
}

// Intn возвращает число из [0, n).
func (r *LockedRand) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rnd.Intn(n)
}

// RandRange возвращает случайное целое из [lo, hi] включительно.
func RandRange(r Random, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + r.Intn(hi-lo+1)
}

// Uniform возвращает случайное число из [lo, hi).
func Uniform(r Random, lo, hi float64) float64 {
	return lo + (hi-lo)*r.Float64()
}
