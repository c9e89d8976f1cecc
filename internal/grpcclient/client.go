package grpcclient

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/example/face-score/internal/landmarks"
	"github.com/example/face-score/internal/logging"
)

// DetectMethod is the face mesh service's unary detect RPC. The request is a
// BytesValue holding the encoded image; the response is a Struct of the form
// {"topology": "<name>", "faces": [[x0, y0, x1, y1, ...], ...]} with normalized
// coordinates and the dominant face first.
const DetectMethod = "/facemesh.v1.FaceMesh/Detect"

// Metadata keys carrying the decoded image size.
const (
	widthHeader  = "x-image-width"
	heightHeader = "x-image-height"
)

// DialLandmarkProvider connects to the face mesh service at addr.
func DialLandmarkProvider(ctx context.Context, addr string, timeout time.Duration, logger *zap.Logger) (landmarks.Provider, *grpc.ClientConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	conn, err := grpc.DialContext(
		dialCtx,
		addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	)
	if err != nil {
		wrapped := logging.NewOperationError("grpcclient.dial_landmark_provider", "", err)
		logger.Error("failed to dial landmark provider", zap.Error(wrapped), zap.String("addr", addr))
		return nil, nil, wrapped
	}
	return NewLandmarkProvider(conn, timeout, logger), conn, nil
}

// NewLandmarkProvider returns a Provider issuing Detect calls over conn. A zero
// timeout leaves the caller's deadline in charge.
func NewLandmarkProvider(conn grpc.ClientConnInterface, timeout time.Duration, logger *zap.Logger) landmarks.Provider {
	return &grpcLandmarkProvider{conn: conn, timeout: timeout, logger: logger.Named("landmark_provider")}
}

type grpcLandmarkProvider struct {
	conn    grpc.ClientConnInterface
	timeout time.Duration
	logger  *zap.Logger
}

func (g *grpcLandmarkProvider) Detect(ctx context.Context, image []byte, width, height int) ([]landmarks.Set, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	ctx = metadata.AppendToOutgoingContext(ctx,
		widthHeader, strconv.Itoa(width),
		heightHeader, strconv.Itoa(height),
	)

	resp := &structpb.Struct{}
	if err := g.conn.Invoke(ctx, DetectMethod, wrapperspb.Bytes(image), resp); err != nil {
		wrapped := logging.NewOperationError("grpcclient.detect", "", err)
		g.logger.Error("landmark provider call failed", zap.Error(wrapped))
		return nil, wrapped
	}

	faces, err := decodeFaces(resp)
	if err != nil {
		wrapped := logging.NewOperationError("grpcclient.decode_faces", "", err)
		g.logger.Error("malformed landmark response", zap.Error(wrapped))
		return nil, wrapped
	}
	return faces, nil
}

func decodeFaces(resp *structpb.Struct) ([]landmarks.Set, error) {
	fields := resp.GetFields()
	if topology := fields["topology"].GetStringValue(); topology != "" && topology != landmarks.Topology {
		return nil, fmt.Errorf("unsupported topology %q, want %q", topology, landmarks.Topology)
	}

	faces := fields["faces"].GetListValue().GetValues()
	out := make([]landmarks.Set, 0, len(faces))
	for i, face := range faces {
		list := face.GetListValue()
		if list == nil {
			return nil, fmt.Errorf("face %d: expected a list of coordinates", i)
		}
		coords := list.GetValues()
		if len(coords)%2 != 0 {
			return nil, fmt.Errorf("face %d: odd coordinate count %d", i, len(coords))
		}
		set := make(landmarks.Set, len(coords)/2)
		for j := range set {
			x, okX := coords[2*j].GetKind().(*structpb.Value_NumberValue)
			y, okY := coords[2*j+1].GetKind().(*structpb.Value_NumberValue)
			if !okX || !okY {
				return nil, fmt.Errorf("face %d: landmark %d is not numeric", i, j)
			}
			set[j] = landmarks.Point{X: x.NumberValue, Y: y.NumberValue}
		}
		out = append(out, set)
	}
	return out, nil
}
