package server

import "net/http"

func (s *Server) handleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sched.Status())
}

func (s *Server) handleSchedulerPause(w http.ResponseWriter, r *http.Request) {
	s.sched.Pause()
	s.logger.Info("scheduler paused")
	writeJSON(w, http.StatusOK, s.sched.Status())
}

func (s *Server) handleSchedulerResume(w http.ResponseWriter, r *http.Request) {
	s.sched.Resume()
	s.logger.Info("scheduler resumed")
	writeJSON(w, http.StatusOK, s.sched.Status())
}
