package value

// Limits are the configured encoding ceilings, checked at validation
// time (pre-transaction), never mid-commit.
type Limits struct {
	MaxKeyBytes          int
	MaxStringBytes       int
	MaxBytesLen          int
	MaxValueBytesEncoded int
	MaxArrayLen          int
	MaxObjectEntries     int
	MaxNestingDepth      int
	MaxVectorDim         int
}

// DefaultLimits returns the default ceilings.
func DefaultLimits() Limits {
	return Limits{
		MaxKeyBytes:          256,
		MaxStringBytes:       1 << 20,
		MaxBytesLen:          16 << 20,
		MaxValueBytesEncoded: 64 << 20,
		MaxArrayLen:          65536,
		MaxObjectEntries:     65536,
		MaxNestingDepth:      64,
		MaxVectorDim:         8192,
	}
}

// Validate walks v and reports a LimitError naming the exceeded limit;
// the engine wraps it into its ConstraintViolation error kind.
func (l Limits) Validate(v Value) error {
	return l.validateDepth(v, 0)
}

func (l Limits) validateDepth(v Value, depth int) error {
	if depth > l.MaxNestingDepth {
		return &LimitError{Reason: "max_nesting_depth exceeded"}
	}
	switch v.typ {
	case TypeString:
		if len(v.s) > l.MaxStringBytes {
			return &LimitError{Reason: "max_string_bytes exceeded"}
		}
	case TypeBytes:
		if len(v.bytes) > l.MaxBytesLen {
			return &LimitError{Reason: "max_bytes_len exceeded"}
		}
	case TypeArray:
		if len(v.arr) > l.MaxArrayLen {
			return &LimitError{Reason: "max_array_len exceeded"}
		}
		for _, item := range v.arr {
			if err := l.validateDepth(item, depth+1); err != nil {
				return err
			}
		}
	case TypeObject:
		if len(v.obj) > l.MaxObjectEntries {
			return &LimitError{Reason: "max_object_entries exceeded"}
		}
		for _, item := range v.obj {
			if err := l.validateDepth(item, depth+1); err != nil {
				return err
			}
		}
	case TypeVector:
		if v.vector.Dimension() > l.MaxVectorDim {
			return &LimitError{Reason: "max_vector_dim exceeded"}
		}
	}
	return nil
}

// LimitError reports which configured limit was exceeded.
type LimitError struct {
	Reason string
}

func (e *LimitError) Error() string { return e.Reason }
