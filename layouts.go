package main

import (
	"context"
	"fmt"
	"net/http"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"handout-maker/backend/internal/job"
	"handout-maker/backend/internal/layout"
)

const (
	layoutServiceName      = "handout.v1.LayoutService"
	listLayoutsProcedure   = "/" + layoutServiceName + "/ListLayouts"
	resolveLayoutProcedure = "/" + layoutServiceName + "/ResolveLayout"
)

// layoutService lets clients discover the supported handout grids before uploading.
type layoutService struct {
	canvas layout.Canvas
}

func (s *layoutService) ListLayouts(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	_ = ctx

	layouts := make([]any, 0, len(layout.Supported()))
	for _, n := range layout.Supported() {
		d, err := s.describe(n)
		if err != nil {
			return nil, connect.NewError(connect.CodeInternal, err)
		}
		layouts = append(layouts, d)
	}

	msg, err := structpb.NewStruct(map[string]any{
		"canvas": map[string]any{
			"width":   s.canvas.Width,
			"height":  s.canvas.Height,
			"padding": s.canvas.Padding,
		},
		"layouts": layouts,
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(msg), nil
}

func (s *layoutService) ResolveLayout(
	ctx context.Context,
	req *connect.Request[wrapperspb.Int32Value],
) (*connect.Response[structpb.Struct], error) {
	_ = ctx

	n := int(req.Msg.GetValue())
	if !layout.IsSupported(n) {
		return nil, connect.NewError(connect.CodeInvalidArgument,
			fmt.Errorf("%w: %d (must be one of %s)", job.ErrUnsupportedCount, n, layout.SupportedList()))
	}

	d, err := s.describe(n)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	msg, err := structpb.NewStruct(d)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(msg), nil
}

func (s *layoutService) describe(slidesPerPage int) (map[string]any, error) {
	g := layout.Resolve(slidesPerPage)
	cell, err := s.canvas.CellSize(g)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"slidesPerPage": slidesPerPage,
		"columns":       g.Columns,
		"rows":          g.Rows,
		"cellWidth":     cell.Width,
		"cellHeight":    cell.Height,
	}, nil
}

// newLayoutServiceHandler mounts the service procedures under their service path.
func newLayoutServiceHandler(svc *layoutService, opts ...connect.HandlerOption) (string, http.Handler) {
	mux := http.NewServeMux()
	mux.Handle(listLayoutsProcedure, connect.NewUnaryHandler(listLayoutsProcedure, svc.ListLayouts, opts...))
	mux.Handle(resolveLayoutProcedure, connect.NewUnaryHandler(resolveLayoutProcedure, svc.ResolveLayout, opts...))
	return "/" + layoutServiceName + "/", mux
}
