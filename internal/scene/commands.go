package scene

import (
	"fmt"

	"github.com/alfredjeanlab/garden/internal/viewport"
)

// ZoomIn zooms about the viewport centre.
func (s *Scene) ZoomIn() viewport.Transform {
	return s.viewportChanged(s.view.ZoomIn())
}

// ZoomOut zooms out about the viewport centre.
func (s *Scene) ZoomOut() viewport.Transform {
	return s.viewportChanged(s.view.ZoomOut())
}

// ResetToFit centres the anchor at scale 1.
func (s *Scene) ResetToFit() viewport.Transform {
	return s.viewportChanged(s.view.ResetToFit())
}

// Pan translates the view by screen units.
func (s *Scene) Pan(dx, dy float64) viewport.Transform {
	return s.viewportChanged(s.view.Pan(dx, dy))
}

// ZoomAt zooms by factor keeping the screen point fixed.
func (s *Scene) ZoomAt(x, y, factor float64) viewport.Transform {
	return s.viewportChanged(s.view.ZoomAt(x, y, factor))
}

// Resize changes the logical viewport size.
func (s *Scene) Resize(width, height float64) viewport.Transform {
	return s.viewportChanged(s.view.Resize(width, height))
}

func (s *Scene) viewportChanged(t viewport.Transform, changed bool) viewport.Transform {
	if changed && s.cfg.OnViewport != nil {
		s.cfg.OnViewport(t)
	}
	return t
}

// Activate selects the node with the given id and notifies OnNodeActivated.
func (s *Scene) Activate(id string) error {
	s.mu.Lock()
	closed := s.closed
	_, ok := s.index[id]
	s.mu.Unlock()

	if closed {
		return ErrClosed
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	if s.cfg.OnNodeActivated != nil {
		s.cfg.OnNodeActivated(id)
	}
	return nil
}

// ActivateAt selects the topmost node drawn at the screen point and returns
// its id.
func (s *Scene) ActivateAt(x, y float64) (string, error) {
	t, ok := s.Overlay().HitTest(x, y)
	if !ok {
		return "", fmt.Errorf("%w: nothing at (%g, %g)", ErrUnknownNode, x, y)
	}
	if err := s.Activate(t.ID); err != nil {
		return "", err
	}
	return t.ID, nil
}
