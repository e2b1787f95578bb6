package watch

import "fmt"

// cocoClasses are the 80 COCO labels in model index order.
var cocoClasses = [...]string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat",
	"dog", "horse", "sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack",
	"umbrella", "handbag", "tie", "suitcase", "frisbee", "skis", "snowboard", "sports ball",
	"kite", "baseball bat", "baseball glove", "skateboard", "surfboard", "tennis racket",
	"bottle", "wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple",
	"sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair",
	"couch", "potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink",
	"refrigerator", "book", "clock", "vase", "scissors", "teddy bear", "hair drier",
	"toothbrush",
}

// NumClasses is the size of the class table.
const NumClasses = len(cocoClasses)

// ClassName returns the label for a class index.
func ClassName(id int) (string, bool) {
	if id < 0 || id >= NumClasses {
		return "", false
	}
	return cocoClasses[id], true
}

// ClassID looks a label up by name.
func ClassID(name string) (int, bool) {
	for i, n := range cocoClasses {
		if n == name {
			return i, true
		}
	}
	return 0, false
}

// AllClasses returns every class index.
func AllClasses() []int {
	out := make([]int, NumClasses)
	for i := range out {
		out[i] = i
	}
	return out
}

func validateClasses(ids []int) error {
	for _, id := range ids {
		if _, ok := ClassName(id); !ok {
			return fmt.Errorf("unknown class %d (valid: 0-%d)", id, NumClasses-1)
		}
	}
	return nil
}
