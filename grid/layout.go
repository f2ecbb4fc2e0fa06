package grid

import (
	"fmt"

	"github.com/arloliu/atmogrid/errs"
	"github.com/arloliu/atmogrid/format"
)

// AttrUpdated is the dataset attribute stamped after every successful write.
const AttrUpdated = "updated"

// Layout describes a numeric dataset as the Engine sees it.
type Layout struct {
	Name         string
	View         View
	Shape        []int // extent of each view axis, in view order
	DType        format.DType
	MissingValue float64
}

// Validate checks the view, the shape rank and the dtype.
func (l Layout) Validate() error {
	if err := l.View.Validate(); err != nil {
		return fmt.Errorf("dataset %q: %w", l.Name, err)
	}
	if len(l.Shape) != len(l.View) {
		return fmt.Errorf("%w: dataset %q shape %v for view %s", errs.ErrDimensionMismatch, l.Name, l.Shape, l.View)
	}
	for _, n := range l.Shape {
		if n <= 0 {
			return fmt.Errorf("%w: dataset %q shape %v", errs.ErrDimensionMismatch, l.Name, l.Shape)
		}
	}
	if !l.DType.IsNumeric() {
		return fmt.Errorf("%w: dataset %q dtype %s", errs.ErrInvalidDType, l.Name, l.DType)
	}

	return nil
}

// Extent returns the length of axis k, or 0 if the view lacks it.
func (l Layout) Extent(k AxisKind) int {
	if i := l.View.Index(k); i >= 0 {
		return l.Shape[i]
	}

	return 0
}
