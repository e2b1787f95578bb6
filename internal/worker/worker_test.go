package worker

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"testing"
	"time"
)

// MockCloser wraps a bytes.Buffer to satisfy io.ReadCloser and io.WriteCloser interfaces.
// This allows us to use in-memory buffers as if they were OS Pipes.
type MockCloser struct {
	*bytes.Buffer
}

func (m *MockCloser) Close() error { return nil }

// frameReply writes a length-prefixed reply into the fake FD 3 pipe.
func frameReply(pipe io.Writer, payload []byte) {
	binary.Write(pipe, binary.BigEndian, uint32(len(payload)))
	pipe.Write(payload)
}

func newMockWorker() (*PythonWorker, *MockCloser, *MockCloser) {
	stdinMock := &MockCloser{Buffer: new(bytes.Buffer)}
	dataPipeMock := &MockCloser{Buffer: new(bytes.Buffer)}
	// Cmd is nil because we aren't testing process management, just the protocol
	return &PythonWorker{ID: 1, Stdin: stdinMock, DataPipe: dataPipeMock}, stdinMock, dataPipeMock
}

func TestEmbed(t *testing.T) {
	w, stdinMock, dataPipeMock := newMockWorker()

	// Protocol: [Status:0] [NumFaces:1] [Box] [Dim] [Vec] [Prob]
	payload := new(bytes.Buffer)
	payload.WriteByte(0)
	binary.Write(payload, binary.BigEndian, uint32(1))
	binary.Write(payload, binary.BigEndian, [4]int32{10, 10, 30, 40})
	binary.Write(payload, binary.BigEndian, uint32(512))
	vec := [512]float32{}
	vec[0] = 0.5
	binary.Write(payload, binary.BigEndian, vec)
	binary.Write(payload, binary.BigEndian, float32(0.99))
	frameReply(dataPipeMock, payload.Bytes())

	fw := &FaceWorker{PythonWorker: w}
	inputFrame := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	faces, err := fw.Embed(inputFrame)
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}

	// Verify Go sent the correct data TO Python: 4 bytes header + frame
	sent := stdinMock.Bytes()
	if len(sent) != 4+len(inputFrame) {
		t.Errorf("Expected %d bytes sent, got %d", 4+len(inputFrame), len(sent))
	}
	if binary.BigEndian.Uint32(sent[:4]) != uint32(len(inputFrame)) {
		t.Errorf("Wrong length header %X", sent[:4])
	}

	if len(faces) != 1 {
		t.Fatalf("Expected 1 face, got %d", len(faces))
	}
	f := faces[0]
	if len(f.Vec) != 512 {
		t.Fatalf("Expected 512-d vector, got %d", len(f.Vec))
	}
	if math.Abs(f.Vec[0]-0.5) > 1e-9 {
		t.Errorf("Expected vector[0] approx 0.5, got %f", f.Vec[0])
	}
	if math.Abs(f.Prob-0.99) > 1e-6 {
		t.Errorf("Expected prob approx 0.99, got %f", f.Prob)
	}
	if f.Area() != 20*30 {
		t.Errorf("Expected area 600, got %d", f.Area())
	}
}

func TestEmbed_NoFaces(t *testing.T) {
	w, _, dataPipeMock := newMockWorker()
	frameReply(dataPipeMock, []byte{0, 0, 0, 0, 0})

	faces, err := (&FaceWorker{PythonWorker: w}).Embed([]byte("frame"))
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(faces) != 0 {
		t.Errorf("Expected no faces, got %d", len(faces))
	}
}

func TestEmbed_Error(t *testing.T) {
	w, _, dataPipeMock := newMockWorker()

	// Protocol: [Status:1] [MsgLen] [Msg]
	payload := new(bytes.Buffer)
	payload.WriteByte(1)
	errMsg := "Python Exception: Import Error"
	binary.Write(payload, binary.BigEndian, uint32(len(errMsg)))
	payload.WriteString(errMsg)
	frameReply(dataPipeMock, payload.Bytes())

	_, err := (&FaceWorker{PythonWorker: w}).Embed([]byte("frame"))
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if err.Error() != "python worker error: "+errMsg {
		t.Errorf("Expected error message '%s', got '%v'", "python worker error: "+errMsg, err)
	}
}

func TestEmbed_Truncated(t *testing.T) {
	w, _, dataPipeMock := newMockWorker()

	payload := new(bytes.Buffer)
	payload.WriteByte(0)
	binary.Write(payload, binary.BigEndian, uint32(2)) // claims 2 faces, carries none
	frameReply(dataPipeMock, payload.Bytes())

	_, err := (&FaceWorker{PythonWorker: w}).Embed([]byte("frame"))
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("Expected ErrUnexpectedEOF, got %v", err)
	}
}

func TestEmbed_EngineGone(t *testing.T) {
	w, _, _ := newMockWorker() // nothing to read: the engine died before answering

	_, err := (&FaceWorker{PythonWorker: w}).Embed([]byte("frame"))
	if err == nil {
		t.Fatal("Expected error from empty pipe")
	}
}

func TestDetect(t *testing.T) {
	w, stdinMock, dataPipeMock := newMockWorker()

	payload := new(bytes.Buffer)
	payload.WriteByte(0)
	binary.Write(payload, binary.BigEndian, uint32(1))
	binary.Write(payload, binary.BigEndian, int32(2)) // car
	binary.Write(payload, binary.BigEndian, float32(0.75))
	binary.Write(payload, binary.BigEndian, [4]float32{0.1, 0.2, 0.3, 0.4})
	frameReply(dataPipeMock, payload.Bytes())

	dw := &DetectWorker{PythonWorker: w}
	dets, err := dw.Detect([]byte{0xAA}, []int{0, 2}, 0.5)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	sent := stdinMock.Bytes()
	// [len][nClasses=2][0][2][f32 conf][frame]
	wantBody := []byte{2, 0, 2}
	confBits := make([]byte, 4)
	binary.BigEndian.PutUint32(confBits, math.Float32bits(0.5))
	wantBody = append(wantBody, confBits...)
	wantBody = append(wantBody, 0xAA)
	if !bytes.Equal(sent[4:], wantBody) {
		t.Errorf("Unexpected request body %X, want %X", sent[4:], wantBody)
	}

	if len(dets) != 1 || dets[0].Class != 2 {
		t.Fatalf("Unexpected detections %+v", dets)
	}
	if math.Abs(dets[0].Box[3]-0.4) > 1e-6 || math.Abs(dets[0].Conf-0.75) > 1e-6 {
		t.Errorf("Unexpected detection values %+v", dets[0])
	}
}

func TestEncodeDetectRequest_BadClass(t *testing.T) {
	if _, err := encodeDetectRequest(nil, []int{300}, 0.5); err == nil {
		t.Error("Expected error for class id out of range")
	}
}

// blockingPipe never returns data, simulating a hung engine.
type blockingPipe struct{ closed chan struct{} }

func (b *blockingPipe) Read(p []byte) (int, error) {
	<-b.closed
	return 0, io.EOF
}

func (b *blockingPipe) Close() error {
	select {
	case <-b.closed:
	default:
		close(b.closed)
	}
	return nil
}

func TestCommunicate_Timeout(t *testing.T) {
	pipe := &blockingPipe{closed: make(chan struct{})}
	defer pipe.Close()

	w := &PythonWorker{
		ID:          3,
		Stdin:       &MockCloser{Buffer: new(bytes.Buffer)},
		DataPipe:    pipe,
		ReadTimeout: 20 * time.Millisecond,
	}

	_, err := w.Communicate([]byte("frame"))
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("Expected ErrTimeout, got %v", err)
	}
}
