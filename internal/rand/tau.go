package rand

// State holds the internal state of the Tausworthe PRNG used by the
// approximate neighbor search. It is cheap to copy, so every worker can own
// one without locking.
type State [3]int64

// New creates a new random state from a seed.
func New(seed int64) State {
	s := State{}
	s[0] = seed
	if s[0] == 0 {
		s[0] = 1
	}
	s[1] = s[0]*6364136223846793005 + 1442695040888963407
	s[2] = s[1]*6364136223846793005 + 1442695040888963407
	for i := 0; i < 10; i++ {
		Int(&s)
	}
	return s
}

// Int generates a pseudo-random int32 (combined Tausworthe generator).
func Int(state *State) int32 {
	state[0] = (((state[0] & 4294967294) << 12) & 0xFFFFFFFF) ^
		((((state[0] << 13) & 0xFFFFFFFF) ^ state[0]) >> 19)
	state[1] = (((state[1] & 4294967288) << 4) & 0xFFFFFFFF) ^
		((((state[1] << 2) & 0xFFFFFFFF) ^ state[1]) >> 25)
	state[2] = (((state[2] & 4294967280) << 17) & 0xFFFFFFFF) ^
		((((state[2] << 3) & 0xFFFFFFFF) ^ state[2]) >> 11)
	return int32(state[0] ^ state[1] ^ state[2])
}

// Intn returns a non-negative pseudo-random int in [0, n).
func Intn(state *State, n int) int {
	if n <= 0 {
		return 0
	}
	i := Int(state)
	if i < 0 {
		i = -i
	}
	return int(i) % n
}

// Shuffle randomly shuffles a slice of int32.
func Shuffle(state *State, arr []int32) {
	for i := len(arr) - 1; i > 0; i-- {
		j := Intn(state, i+1)
		arr[i], arr[j] = arr[j], arr[i]
	}
}
